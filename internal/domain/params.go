package domain

import "fmt"

// RiskParameters are the process-wide scoring thresholds. Loaded once at
// startup and passed explicitly into the scorer and simulator; read-only
// for the process lifetime.
type RiskParameters struct {
	// MaxUtilizationThreshold is the utilization above which a market is
	// flagged, 0.0-1.0.
	MaxUtilizationThreshold float64 `yaml:"max_utilization_threshold" json:"max_utilization_threshold"`

	// LiquidationThresholdBuffer is how close to the utilization threshold
	// (and, for positions, to health factor 1.0) counts as "approaching".
	LiquidationThresholdBuffer float64 `yaml:"liquidation_threshold_buffer" json:"liquidation_threshold_buffer"`

	// MaxPriceVolatility is the volatility figure above which a collateral
	// asset is flagged.
	MaxPriceVolatility float64 `yaml:"max_price_volatility" json:"max_price_volatility"`
}

// DefaultRiskParameters mirrors the thresholds the protocol operators run
// with in production.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxUtilizationThreshold:    0.85,
		LiquidationThresholdBuffer: 0.05,
		MaxPriceVolatility:         0.10,
	}
}

// Validate checks parameter ranges.
func (p RiskParameters) Validate() error {
	if p.MaxUtilizationThreshold <= 0 || p.MaxUtilizationThreshold >= 1 {
		return fmt.Errorf("risk params: max_utilization_threshold %.4f outside (0,1)", p.MaxUtilizationThreshold)
	}
	if p.LiquidationThresholdBuffer < 0 {
		return fmt.Errorf("risk params: liquidation_threshold_buffer must be >= 0")
	}
	if p.MaxPriceVolatility < 0 {
		return fmt.Errorf("risk params: max_price_volatility must be >= 0")
	}
	return nil
}
