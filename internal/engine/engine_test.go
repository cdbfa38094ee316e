package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cometguard/internal/cache"
	"cometguard/internal/domain"
)

// fakeProvider serves scripted snapshots and positions per market.
type fakeProvider struct {
	mu        sync.Mutex
	delay     time.Duration
	failures  map[string]error
	positions map[string]*domain.UserPosition
	fetches   atomic.Int64
	inflight  atomic.Int64
	peak      atomic.Int64
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		failures:  make(map[string]error),
		positions: make(map[string]*domain.UserPosition),
	}
}

func (p *fakeProvider) FetchMarketSnapshot(ctx context.Context, marketID string) (*domain.MarketSnapshot, error) {
	p.fetches.Add(1)
	cur := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	err := p.failures[marketID]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &domain.MarketSnapshot{
		MarketID:             marketID,
		MarketName:           "market-" + marketID,
		TotalSupply:          1000,
		TotalBorrow:          900,
		Utilization:          0.90,
		LiquidationThreshold: 0.90,
		Timestamp:            time.Unix(1_700_000_000, 0).UTC(),
	}, nil
}

func (p *fakeProvider) FetchUserPosition(ctx context.Context, marketID, userAddr string) (*domain.UserPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[userAddr]
	if !ok {
		return nil, fmt.Errorf("position %s not found", userAddr)
	}
	return pos, nil
}

func newEngine(p *fakeProvider, parallelism int, timeout time.Duration) *Engine {
	return New(Options{
		Provider:    p,
		Cache:       cache.New(time.Minute, 16),
		Params:      domain.DefaultRiskParameters(),
		Parallelism: parallelism,
		Timeout:     timeout,
	})
}

func marketIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("0x%040x", i+1)
	}
	return ids
}

func TestAssessRisksPreservesOrder(t *testing.T) {
	p := newFakeProvider()
	p.delay = 5 * time.Millisecond
	e := newEngine(p, 8, time.Second)

	ids := marketIDs(10)
	results := e.AssessRisks(context.Background(), ids)

	if len(results) != len(ids) {
		t.Fatalf("result count = %d, want %d", len(results), len(ids))
	}
	for i, r := range results {
		if r.MarketID != ids[i] {
			t.Errorf("result %d is %s, want %s", i, r.MarketID, ids[i])
		}
		if r.Err != nil {
			t.Errorf("market %s failed: %v", r.MarketID, r.Err)
		}
		if r.Assessment == nil {
			t.Errorf("market %s missing assessment", r.MarketID)
		}
	}
}

func TestAssessRisksScoresHighUtilization(t *testing.T) {
	p := newFakeProvider()
	e := newEngine(p, 4, time.Second)

	results := e.AssessRisks(context.Background(), marketIDs(1))
	a := results[0].Assessment
	if a == nil {
		t.Fatalf("assessment missing: %v", results[0].Err)
	}
	// 90% utilization against the default 85% threshold.
	if a.RiskScore <= 0 {
		t.Errorf("risk score = %d, want > 0", a.RiskScore)
	}
	found := false
	for _, f := range a.Findings {
		if f.Factor == domain.FactorUtilization && f.Severity >= domain.SeverityMedium {
			found = true
		}
	}
	if !found {
		t.Error("no Medium/High utilization finding")
	}
}

func TestAssessRisksPartialFailure(t *testing.T) {
	p := newFakeProvider()
	boom := errors.New("rpc: execution reverted")
	ids := marketIDs(5)
	p.failures[ids[2]] = boom

	e := newEngine(p, 4, time.Second)
	results := e.AssessRisks(context.Background(), ids)

	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, boom) {
				t.Errorf("market %d error = %v, want wrapped provider error", i, r.Err)
			}
			if r.Assessment != nil {
				t.Errorf("failed market %d has an assessment", i)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("sibling market %d failed: %v", i, r.Err)
		}
	}
}

func TestAssessRisksRespectsParallelism(t *testing.T) {
	p := newFakeProvider()
	p.delay = 20 * time.Millisecond
	e := newEngine(p, 3, 5*time.Second)

	e.AssessRisks(context.Background(), marketIDs(12))

	if peak := p.peak.Load(); peak > 3 {
		t.Errorf("peak concurrent fetches = %d, want <= 3", peak)
	}
}

func TestAssessRisksTimeoutReported(t *testing.T) {
	p := newFakeProvider()
	p.delay = 200 * time.Millisecond
	e := newEngine(p, 4, 20*time.Millisecond)

	results := e.AssessRisks(context.Background(), marketIDs(3))

	for _, r := range results {
		if !errors.Is(r.Err, ErrTimeout) {
			t.Errorf("market %s error = %v, want ErrTimeout", r.MarketID, r.Err)
		}
	}
}

func TestAssessRisksUsesCache(t *testing.T) {
	p := newFakeProvider()
	e := newEngine(p, 4, time.Second)
	ids := marketIDs(3)

	e.AssessRisks(context.Background(), ids)
	e.AssessRisks(context.Background(), ids)

	if got := p.fetches.Load(); got != 3 {
		t.Errorf("provider fetched %d times across two cycles, want 3", got)
	}
}

func TestProtocolMetricsSkipsFailedMarkets(t *testing.T) {
	p := newFakeProvider()
	ids := marketIDs(3)
	p.failures[ids[1]] = errors.New("rpc: execution reverted")
	e := newEngine(p, 4, time.Second)

	metrics := e.ProtocolMetrics(context.Background(), ids)
	if len(metrics) != 2 {
		t.Fatalf("metrics count = %d, want 2", len(metrics))
	}
	for _, m := range metrics {
		if m.TotalBorrow != 900 || m.Utilization != 0.90 {
			t.Errorf("metrics = %+v", m)
		}
		if m.AvailableLiquidity != 100 {
			t.Errorf("available liquidity = %v, want 100", m.AvailableLiquidity)
		}
	}
}

func TestSimulatePerScenarioFailure(t *testing.T) {
	p := newFakeProvider()
	e := newEngine(p, 4, time.Second)

	scenarios := []domain.Scenario{
		domain.UtilizationShift{Delta: 0.05},
		domain.PriceShock{AssetID: "0xmissing", DeltaFraction: -0.3},
		domain.UtilizationShift{Delta: -0.05},
	}
	outcomes, err := e.Simulate(context.Background(), marketIDs(1)[0], scenarios)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcome count = %d, want 3", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Errorf("valid scenarios failed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil {
		t.Error("price shock on unknown asset did not fail")
	}
}

func TestCheckUserZeroBorrowHealthy(t *testing.T) {
	p := newFakeProvider()
	user := "0xabc"
	p.positions[user] = &domain.UserPosition{
		Address:         user,
		BorrowBalance:   0,
		CollateralValue: 1000,
	}
	e := newEngine(p, 4, time.Second)

	report, err := e.CheckUser(context.Background(), marketIDs(1)[0], user)
	if err != nil {
		t.Fatalf("CheckUser: %v", err)
	}
	if !report.Healthy {
		t.Error("zero-borrow position reported unhealthy")
	}
	if report.Finding != nil {
		t.Errorf("zero-borrow position produced finding %+v", report.Finding)
	}
}

func TestCheckUserAtLiquidationBoundary(t *testing.T) {
	p := newFakeProvider()
	user := "0xdef"
	// collateral 1000 * threshold 0.9 / borrow 1000 = 0.9
	p.positions[user] = &domain.UserPosition{
		Address:         user,
		BorrowBalance:   1000,
		CollateralValue: 1000,
	}
	e := newEngine(p, 4, time.Second)

	report, err := e.CheckUser(context.Background(), marketIDs(1)[0], user)
	if err != nil {
		t.Fatalf("CheckUser: %v", err)
	}
	if report.Healthy {
		t.Errorf("health factor %v reported healthy", report.HealthFactor)
	}
	if report.Finding == nil || report.Finding.Severity != domain.SeverityHigh {
		t.Errorf("finding = %+v, want HIGH liquidation finding", report.Finding)
	}
}
