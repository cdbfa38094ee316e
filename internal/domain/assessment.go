package domain

import (
	"fmt"
	"time"
)

// Severity of an individual risk finding.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// String returns the display name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes severity as its display name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the display names written by MarshalJSON.
func (s *Severity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"LOW"`:
		*s = SeverityLow
	case `"MEDIUM"`:
		*s = SeverityMedium
	case `"HIGH"`:
		*s = SeverityHigh
	default:
		return fmt.Errorf("unknown severity %s", data)
	}
	return nil
}

// Contributing factor identifiers, in scorer evaluation order.
const (
	FactorUtilization   = "utilization"
	FactorConcentration = "concentration"
	FactorVolatility    = "volatility"
	FactorLiquidation   = "liquidation"
)

// Finding is one qualitative risk observation. It is purely descriptive:
// the composite score is derived separately so that explanation text can
// evolve without moving the score.
type Finding struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Factor      string   `json:"factor"`
}

// RiskAssessment is the scored result for one market. Produced fresh per
// assessment cycle and never mutated after construction.
type RiskAssessment struct {
	MarketID   string `json:"market_id"`
	MarketName string `json:"market_name"`

	// RiskScore is the composite score, 0-100, higher is riskier.
	RiskScore int `json:"risk_score"`

	// Findings ordered by descending severity; ties keep scorer
	// evaluation order.
	Findings []Finding `json:"findings"`

	SnapshotTime time.Time `json:"snapshot_time"`
}
