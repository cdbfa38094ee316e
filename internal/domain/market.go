package domain

import (
	"fmt"
	"math"
	"time"
)

// WeightTolerance is the allowed deviation of the collateral weight sum from 1.0.
const WeightTolerance = 1e-3

// CollateralAsset is one collateral position inside a market snapshot.
type CollateralAsset struct {
	AssetID    string  `json:"asset_id"` // ERC-20 contract address, hex
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`    // USD
	Quantity   float64 `json:"quantity"` // asset units held as collateral
	Weight     float64 `json:"weight"`   // share of total collateral value, 0.0-1.0
	Volatility float64 `json:"volatility"`
	// LiquidationFactor is the fraction of this asset's value that counts
	// toward the liquidation threshold (Comet liquidateCollateralFactor).
	LiquidationFactor float64 `json:"liquidation_factor"`
}

// Value returns the USD value of the position.
func (a CollateralAsset) Value() float64 {
	return a.Price * a.Quantity
}

// MarketSnapshot is an immutable capture of one market's on-chain state.
// A newer snapshot with the same MarketID supersedes it; snapshots are
// never mutated in place.
type MarketSnapshot struct {
	MarketID   string `json:"market_id"` // Comet proxy address, hex
	MarketName string `json:"market_name"`

	TotalSupply float64 `json:"total_supply"` // base asset units supplied
	TotalBorrow float64 `json:"total_borrow"` // base asset units borrowed
	Utilization float64 `json:"utilization"`  // total_borrow / total_supply, 0.0-1.0

	// LiquidationThreshold is the fraction of collateral value borrowable
	// before a position becomes liquidatable.
	LiquidationThreshold float64 `json:"liquidation_threshold"`

	Collateral []CollateralAsset `json:"collateral"`

	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep copy. Cache and simulator hand out clones so that
// no caller ever shares backing storage with another.
func (s *MarketSnapshot) Clone() *MarketSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Collateral = make([]CollateralAsset, len(s.Collateral))
	copy(out.Collateral, s.Collateral)
	return &out
}

// TotalCollateralValue returns the USD value of all collateral.
func (s *MarketSnapshot) TotalCollateralValue() float64 {
	var total float64
	for _, a := range s.Collateral {
		total += a.Value()
	}
	return total
}

// Validate checks snapshot invariants: utilization in [0,1], non-negative
// prices and quantities, and collateral weights summing to 1.0 within
// tolerance when the collateral list is non-empty.
func (s *MarketSnapshot) Validate() error {
	if s.MarketID == "" {
		return fmt.Errorf("snapshot: empty market id")
	}
	if s.Utilization < 0 || s.Utilization > 1 {
		return fmt.Errorf("snapshot %s: utilization %.4f outside [0,1]", s.MarketID, s.Utilization)
	}
	if s.TotalSupply < 0 || s.TotalBorrow < 0 {
		return fmt.Errorf("snapshot %s: negative supply or borrow", s.MarketID)
	}
	if len(s.Collateral) == 0 {
		return nil
	}
	var weightSum float64
	for _, a := range s.Collateral {
		if a.Price < 0 || a.Quantity < 0 {
			return fmt.Errorf("snapshot %s: asset %s has negative price or quantity", s.MarketID, a.Symbol)
		}
		weightSum += a.Weight
	}
	if math.Abs(weightSum-1.0) > WeightTolerance {
		return fmt.Errorf("snapshot %s: collateral weights sum to %.6f, want 1.0", s.MarketID, weightSum)
	}
	return nil
}
