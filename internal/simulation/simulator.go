// Package simulation applies synthetic perturbations to market snapshots
// and re-scores them. All scenario transforms are pure: the base snapshot
// is never mutated, and scoring is delegated to the risk package rather
// than duplicated here.
package simulation

import (
	"errors"
	"fmt"

	"cometguard/internal/domain"
	"cometguard/internal/risk"
)

// ErrUnknownAsset is returned when a price shock names an asset the
// snapshot does not hold.
var ErrUnknownAsset = errors.New("unknown collateral asset")

// cascadeSteps bounds the linear search over price-drop fractions.
const cascadeSteps = 200

// Severity cutoffs for projected outcomes.
const (
	deltaMediumCutoff = 10
	deltaHighCutoff   = 30

	liquidatedMediumCutoff = 0.10
	liquidatedHighCutoff   = 0.25
)

// Simulator derives hypothetical snapshots and reports the score movement
// against the baseline.
type Simulator struct {
	scorer *risk.Scorer
}

// New creates a simulator sharing the given scorer.
func New(scorer *risk.Scorer) *Simulator {
	return &Simulator{scorer: scorer}
}

// Run applies one scenario to the base snapshot and returns the projected
// outcome. The only failure mode for valid snapshots is malformed scenario
// input (ErrUnknownAsset).
func (s *Simulator) Run(base *domain.MarketSnapshot, scenario domain.Scenario) (*domain.SimulationResult, error) {
	baseline := s.scorer.Assess(base)

	if cascade, ok := scenario.(domain.CascadeStressTest); ok {
		return s.runCascade(base, baseline, cascade)
	}

	perturbed, err := Apply(base, scenario)
	if err != nil {
		return nil, err
	}
	projected := s.scorer.Assess(perturbed)

	delta := projected.RiskScore - baseline.RiskScore
	return &domain.SimulationResult{
		Scenario:       scenario.Kind(),
		Description:    scenario.Describe(),
		Severity:       severityForDelta(delta),
		BaselineScore:  baseline.RiskScore,
		ProjectedScore: projected.RiskScore,
		ScoreDelta:     delta,
		Narrative: fmt.Sprintf("%s moves the risk score from %d to %d (%+d)",
			scenario.Describe(), baseline.RiskScore, projected.RiskScore, delta),
	}, nil
}

// Apply derives the perturbed snapshot for a shift or shock scenario.
// Cascade stress tests are handled by Run directly since they search over
// many perturbed snapshots instead of producing one.
func Apply(base *domain.MarketSnapshot, scenario domain.Scenario) (*domain.MarketSnapshot, error) {
	switch sc := scenario.(type) {
	case domain.UtilizationShift:
		return applyUtilizationShift(base, sc), nil
	case domain.PriceShock:
		return applyPriceShock(base, sc)
	default:
		return nil, fmt.Errorf("scenario %s has no single-snapshot transform", scenario.Kind())
	}
}

func applyUtilizationShift(base *domain.MarketSnapshot, sc domain.UtilizationShift) *domain.MarketSnapshot {
	out := base.Clone()
	u := base.Utilization + sc.Delta
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	out.Utilization = u
	// Keep the borrow figure consistent with the shifted utilization.
	out.TotalBorrow = u * out.TotalSupply
	return out
}

func applyPriceShock(base *domain.MarketSnapshot, sc domain.PriceShock) (*domain.MarketSnapshot, error) {
	out := base.Clone()

	idx := -1
	for i, a := range out.Collateral {
		if a.AssetID == sc.AssetID || a.Symbol == sc.AssetID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("price shock on %q: %w", sc.AssetID, ErrUnknownAsset)
	}

	price := out.Collateral[idx].Price * (1 + sc.DeltaFraction)
	if price < 0 {
		price = 0
	}
	out.Collateral[idx].Price = price

	renormalizeWeights(out.Collateral)
	return out, nil
}

// renormalizeWeights recomputes every asset's share of total collateral
// value after a price change.
func renormalizeWeights(collateral []domain.CollateralAsset) {
	var total float64
	for _, a := range collateral {
		total += a.Value()
	}
	if total <= 0 {
		for i := range collateral {
			collateral[i].Weight = 0
		}
		return
	}
	for i := range collateral {
		collateral[i].Weight = collateral[i].Value() / total
	}
}

// runCascade performs a bounded linear search over uniform price-drop
// fractions in (0, MaxPriceDrop], recording the smallest drop at which a
// representative market-wide position crosses health factor 1.0. With a
// caller-supplied position sample it additionally estimates the fraction of
// those positions under water at the full drop.
func (s *Simulator) runCascade(base *domain.MarketSnapshot, baseline *domain.RiskAssessment, sc domain.CascadeStressTest) (*domain.SimulationResult, error) {
	if sc.MaxPriceDrop <= 0 || sc.MaxPriceDrop > 1 {
		return nil, fmt.Errorf("cascade stress test: max price drop %.4f outside (0,1]", sc.MaxPriceDrop)
	}

	representative := domain.UserPosition{
		BorrowBalance:   base.TotalBorrow,
		CollateralValue: base.TotalCollateralValue(),
	}

	var crossing *float64
	step := sc.MaxPriceDrop / cascadeSteps
	for i := 1; i <= cascadeSteps; i++ {
		drop := float64(i) * step
		if healthAfterDrop(representative, base.LiquidationThreshold, drop) <= 1.0 {
			crossing = &drop
			break
		}
	}

	var liquidated *float64
	if len(sc.Positions) > 0 {
		under := 0
		for _, pos := range sc.Positions {
			if healthAfterDrop(pos, base.LiquidationThreshold, sc.MaxPriceDrop) <= 1.0 {
				under++
			}
		}
		frac := float64(under) / float64(len(sc.Positions))
		liquidated = &frac
	}

	narrative := fmt.Sprintf("no liquidation cascade within a %.1f%% collateral price drop", sc.MaxPriceDrop*100)
	severity := domain.SeverityLow
	if crossing != nil {
		narrative = fmt.Sprintf("a %.2f%% collateral price drop pushes the market past the liquidation threshold", *crossing*100)
		severity = severityForCrossing(*crossing, sc.MaxPriceDrop)
	}
	if liquidated != nil {
		narrative += fmt.Sprintf("; %.1f%% of sampled positions under water at the full drop", *liquidated*100)
		if s := severityForLiquidated(*liquidated); s > severity {
			severity = s
		}
	}

	return &domain.SimulationResult{
		Scenario:           sc.Kind(),
		Description:        sc.Describe(),
		Severity:           severity,
		BaselineScore:      baseline.RiskScore,
		ProjectedScore:     baseline.RiskScore,
		CrossingFraction:   crossing,
		LiquidatedFraction: liquidated,
		Narrative:          narrative,
	}, nil
}

// healthAfterDrop scales collateral value by (1 - drop) and recomputes the
// health factor.
func healthAfterDrop(pos domain.UserPosition, liquidationThreshold, drop float64) float64 {
	scaled := pos
	scaled.CollateralValue = pos.CollateralValue * (1 - drop)
	return scaled.HealthFactor(liquidationThreshold)
}

func severityForDelta(delta int) domain.Severity {
	switch {
	case delta >= deltaHighCutoff:
		return domain.SeverityHigh
	case delta >= deltaMediumCutoff:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// severityForCrossing grades how early in the search range the threshold
// was crossed.
func severityForCrossing(crossing, maxDrop float64) domain.Severity {
	switch {
	case crossing <= maxDrop/3:
		return domain.SeverityHigh
	case crossing <= 2*maxDrop/3:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func severityForLiquidated(frac float64) domain.Severity {
	switch {
	case frac >= liquidatedHighCutoff:
		return domain.SeverityHigh
	case frac >= liquidatedMediumCutoff:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
