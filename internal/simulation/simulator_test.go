package simulation

import (
	"errors"
	"math"
	"testing"
	"time"

	"cometguard/internal/domain"
	"cometguard/internal/risk"
)

func newSimulator() *Simulator {
	return New(risk.NewScorer(domain.DefaultRiskParameters()))
}

func baseSnapshot() *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		MarketID:             "0xc3d688b66703497daa19211eedff47f25384cdc3",
		MarketName:           "USDC",
		TotalSupply:          1_000_000_000,
		TotalBorrow:          750_000_000,
		Utilization:          0.75,
		LiquidationThreshold: 0.90,
		Collateral: []domain.CollateralAsset{
			{AssetID: "0xweth", Symbol: "WETH", Price: 2000, Quantity: 400_000, Weight: 0.8205, Volatility: 0.04, LiquidationFactor: 0.91},
			{AssetID: "0xwbtc", Symbol: "WBTC", Price: 35000, Quantity: 5_000, Weight: 0.1795, Volatility: 0.05, LiquidationFactor: 0.88},
		},
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestUtilizationShiftZeroDeltaIdempotent(t *testing.T) {
	sim := newSimulator()
	base := baseSnapshot()

	res, err := sim.Run(base, domain.UtilizationShift{Delta: 0})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ScoreDelta != 0 {
		t.Errorf("zero shift moved score by %d", res.ScoreDelta)
	}
	if res.BaselineScore != res.ProjectedScore {
		t.Errorf("baseline %d != projected %d under zero shift", res.BaselineScore, res.ProjectedScore)
	}
}

func TestUtilizationShiftClamped(t *testing.T) {
	base := baseSnapshot()

	up, err := Apply(base, domain.UtilizationShift{Delta: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if up.Utilization != 1.0 {
		t.Errorf("utilization = %v, want clamp at 1.0", up.Utilization)
	}

	down, err := Apply(base, domain.UtilizationShift{Delta: -2})
	if err != nil {
		t.Fatal(err)
	}
	if down.Utilization != 0 {
		t.Errorf("utilization = %v, want clamp at 0", down.Utilization)
	}
}

func TestUtilizationShiftRaisesScore(t *testing.T) {
	sim := newSimulator()
	// 0.75 + 0.20 = 0.95, past the 0.85 threshold.
	res, err := sim.Run(baseSnapshot(), domain.UtilizationShift{Delta: 0.20})
	if err != nil {
		t.Fatal(err)
	}
	if res.ScoreDelta <= 0 {
		t.Errorf("shift past threshold produced delta %d, want > 0", res.ScoreDelta)
	}
}

func TestScenariosDoNotMutateBase(t *testing.T) {
	sim := newSimulator()
	base := baseSnapshot()
	orig := base.Clone()

	if _, err := sim.Run(base, domain.UtilizationShift{Delta: 0.2}); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Run(base, domain.PriceShock{AssetID: "0xweth", DeltaFraction: -0.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Run(base, domain.CascadeStressTest{MaxPriceDrop: 0.5}); err != nil {
		t.Fatal(err)
	}

	if base.Utilization != orig.Utilization || base.TotalBorrow != orig.TotalBorrow {
		t.Error("scenario mutated base snapshot utilization/borrow")
	}
	for i := range base.Collateral {
		if base.Collateral[i] != orig.Collateral[i] {
			t.Errorf("scenario mutated base collateral[%d]", i)
		}
	}
}

func TestPriceShockRenormalizesWeights(t *testing.T) {
	base := baseSnapshot()
	perturbed, err := Apply(base, domain.PriceShock{AssetID: "0xweth", DeltaFraction: -0.5})
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, a := range perturbed.Collateral {
		sum += a.Weight
	}
	if math.Abs(sum-1.0) > domain.WeightTolerance {
		t.Errorf("weights sum to %v after shock, want 1.0", sum)
	}

	// Halving WETH's price must shrink its share.
	if perturbed.Collateral[0].Weight >= base.Collateral[0].Weight {
		t.Errorf("WETH weight %v did not shrink from %v",
			perturbed.Collateral[0].Weight, base.Collateral[0].Weight)
	}
}

func TestPriceShockUnknownAsset(t *testing.T) {
	sim := newSimulator()
	_, err := sim.Run(baseSnapshot(), domain.PriceShock{AssetID: "0xdeadbeef", DeltaFraction: -0.2})
	if !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("error = %v, want ErrUnknownAsset", err)
	}
}

func TestPriceShockFloorsAtZero(t *testing.T) {
	perturbed, err := Apply(baseSnapshot(), domain.PriceShock{AssetID: "WETH", DeltaFraction: -1.5})
	if err != nil {
		t.Fatal(err)
	}
	if perturbed.Collateral[0].Price != 0 {
		t.Errorf("price = %v, want floor at 0", perturbed.Collateral[0].Price)
	}
}

func TestCascadeCrossingWithinBound(t *testing.T) {
	sim := newSimulator()
	base := baseSnapshot()
	// Representative position: collateral 975M USD, borrow 750M.
	// hf(drop) = 975e6*(1-drop)*0.9/750e6 -> crosses 1.0 at drop ~= 0.1453.
	res, err := sim.Run(base, domain.CascadeStressTest{MaxPriceDrop: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if res.CrossingFraction == nil {
		t.Fatal("expected a crossing fraction")
	}
	got := *res.CrossingFraction
	if got <= 0 || got > 0.25 {
		t.Fatalf("crossing fraction %v outside (0, 0.25]", got)
	}
	if math.Abs(got-0.1453) > 0.01 {
		t.Errorf("crossing fraction %v, want about 0.1453", got)
	}
}

func TestCascadeNoCrossing(t *testing.T) {
	sim := newSimulator()
	base := baseSnapshot()
	base.TotalBorrow = 100_000_000 // far from the threshold
	base.Utilization = 0.1

	res, err := sim.Run(base, domain.CascadeStressTest{MaxPriceDrop: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if res.CrossingFraction != nil {
		t.Errorf("unexpected crossing at %v", *res.CrossingFraction)
	}
	if res.Severity != domain.SeverityLow {
		t.Errorf("severity = %s, want LOW", res.Severity)
	}
}

func TestCascadeLiquidatedFractionRequiresSample(t *testing.T) {
	sim := newSimulator()
	base := baseSnapshot()

	// No sample: only the crossing point is reported.
	res, err := sim.Run(base, domain.CascadeStressTest{MaxPriceDrop: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if res.LiquidatedFraction != nil {
		t.Error("liquidated fraction reported without a position sample")
	}

	// With a sample: at a 25% drop and threshold 0.9, a position is under
	// water when collateral*0.75*0.9 <= borrow.
	positions := []domain.UserPosition{
		{Address: "0x1", BorrowBalance: 900, CollateralValue: 1000},  // under water
		{Address: "0x2", BorrowBalance: 100, CollateralValue: 1000},  // safe
		{Address: "0x3", BorrowBalance: 0, CollateralValue: 500},     // no borrow, safe
		{Address: "0x4", BorrowBalance: 700, CollateralValue: 1000},  // under water
	}
	res, err = sim.Run(base, domain.CascadeStressTest{MaxPriceDrop: 0.25, Positions: positions})
	if err != nil {
		t.Fatal(err)
	}
	if res.LiquidatedFraction == nil {
		t.Fatal("expected a liquidated fraction")
	}
	if math.Abs(*res.LiquidatedFraction-0.5) > 1e-9 {
		t.Errorf("liquidated fraction = %v, want 0.5", *res.LiquidatedFraction)
	}
	if res.Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want HIGH for half the sample liquidated", res.Severity)
	}
}

func TestCascadeRejectsBadBound(t *testing.T) {
	sim := newSimulator()
	for _, drop := range []float64{0, -0.1, 1.5} {
		if _, err := sim.Run(baseSnapshot(), domain.CascadeStressTest{MaxPriceDrop: drop}); err == nil {
			t.Errorf("max drop %v accepted", drop)
		}
	}
}
