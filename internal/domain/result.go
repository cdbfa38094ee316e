package domain

// SimulationResult is the projected outcome of one scenario against one
// snapshot. Derived, read-only, discarded after reporting.
type SimulationResult struct {
	Scenario ScenarioKind `json:"scenario"`
	// Description is the human-readable scenario descriptor.
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`

	BaselineScore  int `json:"baseline_score"`
	ProjectedScore int `json:"projected_score"`
	ScoreDelta     int `json:"score_delta"`

	// CrossingFraction is the smallest uniform price-drop fraction at which
	// the representative position crosses the liquidation threshold.
	// Nil when no crossing occurs within the search bound, and for
	// non-cascade scenarios.
	CrossingFraction *float64 `json:"crossing_fraction,omitempty"`

	// LiquidatedFraction is the share of the supplied position sample under
	// water at the full price drop. Nil when no sample was supplied.
	LiquidatedFraction *float64 `json:"liquidated_fraction,omitempty"`

	Narrative string `json:"narrative"`
}
