package domain

// ProtocolMetrics summarizes one market's size and liquidity. Values are in
// base asset units; Comet base assets are dollar stables, so these read as
// USD figures.
type ProtocolMetrics struct {
	MarketID   string `json:"market_id"`
	MarketName string `json:"market_name"`

	// TVL is supplied base value plus collateral value.
	TVL float64 `json:"tvl"`

	TotalBorrow     float64 `json:"total_borrow"`
	CollateralValue float64 `json:"collateral_value"`
	Utilization     float64 `json:"utilization"`

	// AvailableLiquidity is the unborrowed share of supply.
	AvailableLiquidity float64 `json:"available_liquidity"`
}

// ComputeProtocolMetrics derives metrics from one snapshot.
func ComputeProtocolMetrics(snap *MarketSnapshot) ProtocolMetrics {
	collateral := snap.TotalCollateralValue()
	available := snap.TotalSupply - snap.TotalBorrow
	if available < 0 {
		available = 0
	}
	return ProtocolMetrics{
		MarketID:           snap.MarketID,
		MarketName:         snap.MarketName,
		TVL:                snap.TotalSupply + collateral,
		TotalBorrow:        snap.TotalBorrow,
		CollateralValue:    collateral,
		Utilization:        snap.Utilization,
		AvailableLiquidity: available,
	}
}
