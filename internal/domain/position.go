package domain

import "math"

// UserPosition is one account's position in a market, as reported by the
// on-chain provider.
type UserPosition struct {
	Address string `json:"address"`

	// BorrowBalance is the base asset amount borrowed. Zero means the
	// account cannot be liquidated.
	BorrowBalance float64 `json:"borrow_balance"`

	// CollateralValue is the total USD value of the account's collateral.
	CollateralValue float64 `json:"collateral_value"`

	// CollateralBalances maps asset address to units held.
	CollateralBalances map[string]float64 `json:"collateral_balances,omitempty"`
}

// HealthFactor computes collateralValue * liquidationThreshold / borrow.
// A factor > 1.0 is healthy; <= 1.0 is at or past the liquidation boundary.
// Zero borrow is maximally healthy (+Inf), never a division fault.
func (p UserPosition) HealthFactor(liquidationThreshold float64) float64 {
	if p.BorrowBalance <= 0 {
		return math.Inf(1)
	}
	return p.CollateralValue * liquidationThreshold / p.BorrowBalance
}
