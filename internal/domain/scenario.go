package domain

import "fmt"

// ScenarioKind identifies a simulation scenario variant.
type ScenarioKind string

const (
	ScenarioUtilizationShift ScenarioKind = "UTILIZATION_SHIFT"
	ScenarioPriceShock       ScenarioKind = "PRICE_SHOCK"
	ScenarioCascadeStress    ScenarioKind = "CASCADE_STRESS"
)

// Scenario is a closed set of what-if perturbations applied to a base
// snapshot. The set of kinds is fixed; each variant carries only the
// parameters needed to derive the perturbed snapshot.
type Scenario interface {
	Kind() ScenarioKind
	Describe() string

	sealed()
}

// UtilizationShift adds Delta to utilization, clamped to [0,1].
type UtilizationShift struct {
	Delta float64
}

func (s UtilizationShift) Kind() ScenarioKind { return ScenarioUtilizationShift }
func (s UtilizationShift) Describe() string {
	return fmt.Sprintf("utilization shift %+.1f%%", s.Delta*100)
}
func (UtilizationShift) sealed() {}

// PriceShock multiplies the named asset's price by (1 + DeltaFraction) and
// renormalizes collateral weights.
type PriceShock struct {
	AssetID       string
	DeltaFraction float64
}

func (s PriceShock) Kind() ScenarioKind { return ScenarioPriceShock }
func (s PriceShock) Describe() string {
	return fmt.Sprintf("price shock %+.1f%% on %s", s.DeltaFraction*100, s.AssetID)
}
func (PriceShock) sealed() {}

// CascadeStressTest searches uniform collateral price drops in
// (0, MaxPriceDrop] for the smallest fraction that pushes a representative
// position past the liquidation threshold. When Positions is non-empty the
// result also reports the fraction of those positions under water at the
// full drop; with no sample only the crossing point is reported.
type CascadeStressTest struct {
	MaxPriceDrop float64
	Positions    []UserPosition
}

func (s CascadeStressTest) Kind() ScenarioKind { return ScenarioCascadeStress }
func (s CascadeStressTest) Describe() string {
	return fmt.Sprintf("cascade stress test up to -%.1f%% collateral prices", s.MaxPriceDrop*100)
}
func (CascadeStressTest) sealed() {}
