package provider

import (
	"context"
	"math"
	"testing"

	"cometguard/internal/domain"
)

func TestStubSnapshotIsValid(t *testing.T) {
	stub := NewStub()
	snap, err := stub.FetchMarketSnapshot(context.Background(), stubCometAddress)
	if err != nil {
		t.Fatalf("FetchMarketSnapshot: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Fatalf("stub snapshot invalid: %v", err)
	}
	if snap.MarketName != "USDC" {
		t.Errorf("market name = %q, want USDC", snap.MarketName)
	}
	if len(snap.Collateral) != 2 {
		t.Fatalf("collateral count = %d, want 2", len(snap.Collateral))
	}
}

func TestStubUserPositionHealthy(t *testing.T) {
	stub := NewStub()
	pos, err := stub.FetchUserPosition(context.Background(), stubCometAddress, "0x1234567890abcdef1234567890abcdef12345678")
	if err != nil {
		t.Fatalf("FetchUserPosition: %v", err)
	}
	if pos.BorrowBalance != 0 {
		t.Errorf("borrow = %v, want 0", pos.BorrowBalance)
	}
	if !math.IsInf(pos.HealthFactor(0.9), 1) {
		t.Error("zero-borrow stub position should be maximally healthy")
	}
}

func TestAssignWeights(t *testing.T) {
	collateral := []domain.CollateralAsset{
		{AssetID: "0xa", Price: 100, Quantity: 3},
		{AssetID: "0xb", Price: 100, Quantity: 1},
	}
	assignWeights(collateral)

	if math.Abs(collateral[0].Weight-0.75) > 1e-9 || math.Abs(collateral[1].Weight-0.25) > 1e-9 {
		t.Errorf("weights = %v, %v; want 0.75, 0.25", collateral[0].Weight, collateral[1].Weight)
	}
}

func TestAssignWeightsZeroValue(t *testing.T) {
	collateral := []domain.CollateralAsset{
		{AssetID: "0xa", Price: 0, Quantity: 0},
		{AssetID: "0xb", Price: 0, Quantity: 0},
	}
	assignWeights(collateral)

	var sum float64
	for _, a := range collateral {
		sum += a.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("zero-value weights sum to %v, want 1.0", sum)
	}
}

func TestWeightedLiquidationThreshold(t *testing.T) {
	collateral := []domain.CollateralAsset{
		{Weight: 0.8, LiquidationFactor: 0.90},
		{Weight: 0.2, LiquidationFactor: 0.80},
	}
	got := weightedLiquidationThreshold(collateral)
	if math.Abs(got-0.88) > 1e-9 {
		t.Errorf("threshold = %v, want 0.88", got)
	}
}

func TestRecordPriceVolatility(t *testing.T) {
	c := &CometClient{history: make(map[string][]float64)}

	// First sample: no movement yet.
	if v := c.recordPrice("0xweth", 2000); v != 0 {
		t.Errorf("single-sample volatility = %v, want 0", v)
	}
	// Constant prices: zero volatility.
	for i := 0; i < 5; i++ {
		if v := c.recordPrice("0xweth", 2000); v != 0 {
			t.Errorf("constant-price volatility = %v, want 0", v)
		}
	}
	// A swing produces a positive figure.
	if v := c.recordPrice("0xweth", 1600); v <= 0 {
		t.Errorf("volatility after 20%% drop = %v, want > 0", v)
	}

	// History stays bounded.
	for i := 0; i < 100; i++ {
		c.recordPrice("0xweth", 2000+float64(i))
	}
	if got := len(c.history["0xweth"]); got > volatilityWindow {
		t.Errorf("history length = %d, want <= %d", got, volatilityWindow)
	}
}
