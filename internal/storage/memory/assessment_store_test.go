package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cometguard/internal/domain"
	"cometguard/internal/storage"
)

func assessment(marketID string, score int, at time.Time) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		MarketID:   marketID,
		MarketName: "USDC",
		RiskScore:  score,
		Findings: []domain.Finding{{
			Severity:    domain.SeverityHigh,
			Description: "market utilization is 90.00%, exceeding the 85.00% threshold",
			Factor:      domain.FactorUtilization,
		}},
		SnapshotTime: at,
	}
}

func TestAssessmentStoreInsertAndGetLatest(t *testing.T) {
	s := NewAssessmentStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	if err := s.Insert(ctx, assessment("m1", 10, t0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, assessment("m1", 42, t0.Add(time.Minute))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.GetLatest(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.RiskScore != 42 {
		t.Errorf("latest score = %d, want 42", got.RiskScore)
	}
}

func TestAssessmentStoreGetLatestNotFound(t *testing.T) {
	s := NewAssessmentStore()
	_, err := s.GetLatest(context.Background(), "absent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAssessmentStoreRejectsInvalidInput(t *testing.T) {
	s := NewAssessmentStore()
	if err := s.Insert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil insert err = %v, want ErrInvalidInput", err)
	}
	if err := s.Insert(context.Background(), &domain.RiskAssessment{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty market id err = %v, want ErrInvalidInput", err)
	}
}

func TestAssessmentStoreGetByMarketOrderAndLimit(t *testing.T) {
	s := NewAssessmentStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	for i := 0; i < 5; i++ {
		if err := s.Insert(ctx, assessment("m1", i, t0.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	records, err := s.GetByMarket(ctx, "m1", 3)
	if err != nil {
		t.Fatalf("GetByMarket: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count = %d, want 3", len(records))
	}
	for i, want := range []int{4, 3, 2} {
		if records[i].RiskScore != want {
			t.Errorf("record %d score = %d, want %d", i, records[i].RiskScore, want)
		}
	}

	all, err := s.GetByMarket(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("GetByMarket all: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("unlimited count = %d, want 5", len(all))
	}
}

func TestAssessmentStoreCopiesRecords(t *testing.T) {
	s := NewAssessmentStore()
	ctx := context.Background()

	in := assessment("m1", 10, time.Unix(1_700_000_000, 0).UTC())
	if err := s.Insert(ctx, in); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	in.Findings[0].Description = "mutated"

	got, err := s.GetLatest(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.Findings[0].Description == "mutated" {
		t.Error("store shares findings slice with caller")
	}
	got.Findings[0].Description = "mutated again"

	again, err := s.GetLatest(ctx, "m1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if again.Findings[0].Description == "mutated again" {
		t.Error("returned record shares findings slice with store")
	}
}

func TestAssessmentStoreListMarkets(t *testing.T) {
	s := NewAssessmentStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	for _, id := range []string{"m2", "m1", "m2"} {
		if err := s.Insert(ctx, assessment(id, 1, t0)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ids, err := s.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Errorf("market ids = %v, want [m1 m2]", ids)
	}
}
