// Package risk computes composite risk scores for market snapshots.
// Scoring is a pure function of (snapshot, parameters): no I/O, no shared
// state, deterministic output.
package risk

import (
	"fmt"
	"math"
	"sort"

	"cometguard/internal/domain"
)

// Component weights of the additive model. Utilization carries the largest
// weight: it is the primary systemic-risk signal for a lending market.
const (
	WeightUtilization   = 50.0
	WeightConcentration = 30.0
	WeightVolatility    = 20.0

	// ConcentrationThreshold is the single-asset weight above which
	// concentration risk starts contributing.
	ConcentrationThreshold = 0.70

	// concentrationMediumCutoff escalates the concentration finding from
	// Low to Medium.
	concentrationMediumCutoff = 0.85
)

// Scorer turns a market snapshot into a bounded risk score plus findings.
type Scorer struct {
	params domain.RiskParameters
}

// NewScorer creates a scorer with the given parameters.
func NewScorer(params domain.RiskParameters) *Scorer {
	return &Scorer{params: params}
}

// Params returns the scoring parameters the scorer was built with.
func (s *Scorer) Params() domain.RiskParameters {
	return s.params
}

// Assess scores one snapshot. The composite score is the clamped sum of the
// utilization, concentration and volatility components; findings are ordered
// by descending severity with ties kept in that evaluation order.
func (s *Scorer) Assess(snap *domain.MarketSnapshot) *domain.RiskAssessment {
	var score float64
	var findings []domain.Finding

	points, finding := s.scoreUtilization(snap)
	score += points
	if finding != nil {
		findings = append(findings, *finding)
	}

	points, finding = s.scoreConcentration(snap)
	score += points
	if finding != nil {
		findings = append(findings, *finding)
	}

	points, finding = s.scoreVolatility(snap)
	score += points
	if finding != nil {
		findings = append(findings, *finding)
	}

	// Stable sort keeps evaluation order within a severity level.
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity > findings[j].Severity
	})

	return &domain.RiskAssessment{
		MarketID:     snap.MarketID,
		MarketName:   snap.MarketName,
		RiskScore:    clampScore(score),
		Findings:     findings,
		SnapshotTime: snap.Timestamp,
	}
}

// scoreUtilization contributes points proportional to how far utilization
// sits above the configured threshold, scaled to the remaining headroom.
// A market with zero supply has no meaningful utilization and contributes
// nothing.
func (s *Scorer) scoreUtilization(snap *domain.MarketSnapshot) (float64, *domain.Finding) {
	if snap.TotalSupply == 0 {
		return 0, nil
	}

	u := snap.Utilization
	threshold := s.params.MaxUtilizationThreshold

	if u > threshold {
		points := (u - threshold) / (1 - threshold) * WeightUtilization
		return points, &domain.Finding{
			Severity: domain.SeverityHigh,
			Description: fmt.Sprintf("market utilization is %.2f%%, exceeding the %.2f%% threshold",
				u*100, threshold*100),
			Factor: domain.FactorUtilization,
		}
	}

	if u > threshold-s.params.LiquidationThresholdBuffer {
		return 0, &domain.Finding{
			Severity: domain.SeverityMedium,
			Description: fmt.Sprintf("market utilization is %.2f%%, within %.2f%% of the %.2f%% threshold",
				u*100, s.params.LiquidationThresholdBuffer*100, threshold*100),
			Factor: domain.FactorUtilization,
		}
	}

	return 0, nil
}

// scoreConcentration flags a single collateral asset dominating total
// collateral value. Concentration risk grows non-linearly above the
// threshold; the linear ramp here is a deliberate first approximation.
func (s *Scorer) scoreConcentration(snap *domain.MarketSnapshot) (float64, *domain.Finding) {
	if len(snap.Collateral) == 0 {
		return 0, nil
	}

	max := snap.Collateral[0]
	for _, a := range snap.Collateral[1:] {
		if a.Weight > max.Weight {
			max = a
		}
	}
	if max.Weight <= ConcentrationThreshold {
		return 0, nil
	}

	points := (max.Weight - ConcentrationThreshold) / (1 - ConcentrationThreshold) * WeightConcentration

	severity := domain.SeverityLow
	if max.Weight > concentrationMediumCutoff {
		severity = domain.SeverityMedium
	}
	return points, &domain.Finding{
		Severity: severity,
		Description: fmt.Sprintf("collateral concentration in %s exceeds %.0f%% of total value (%.2f%%)",
			max.Symbol, ConcentrationThreshold*100, max.Weight*100),
		Factor: domain.FactorConcentration,
	}
}

// scoreVolatility contributes fixed points when any collateral asset's
// recorded price movement exceeds the configured limit.
func (s *Scorer) scoreVolatility(snap *domain.MarketSnapshot) (float64, *domain.Finding) {
	limit := s.params.MaxPriceVolatility
	if limit <= 0 {
		return 0, nil
	}

	worst := -1.0
	var worstAsset domain.CollateralAsset
	for _, a := range snap.Collateral {
		if a.Volatility > limit && a.Volatility > worst {
			worst = a.Volatility
			worstAsset = a
		}
	}
	if worst < 0 {
		return 0, nil
	}

	severity := domain.SeverityMedium
	if worst > 2*limit {
		severity = domain.SeverityHigh
	}
	return WeightVolatility, &domain.Finding{
		Severity: severity,
		Description: fmt.Sprintf("collateral asset %s volatility %.2f%% exceeds the %.2f%% limit",
			worstAsset.Symbol, worst*100, limit*100),
		Factor: domain.FactorVolatility,
	}
}

// clampScore bounds the composite to [0,100] even when individual components
// overshoot on adversarial inputs.
func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}
