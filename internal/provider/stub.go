package provider

import (
	"context"
	"fmt"
	"time"

	"cometguard/internal/domain"
)

// Mainnet addresses used by the stub market.
const (
	stubCometAddress = "0xc3d688b66703497daa19211eedff47f25384cdc3"
	stubWETHAddress  = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	stubWBTCAddress  = "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"
)

// Stub serves deterministic snapshots without touching the network. Used by
// the CLI when no RPC endpoint is configured, and by tests.
type Stub struct {
	now func() time.Time
}

// NewStub creates a stub provider.
func NewStub() *Stub {
	return &Stub{now: time.Now}
}

// FetchMarketSnapshot returns a fixed USDC market with WETH and WBTC
// collateral. Total collateral value is 800M + 175M USD, so the weights
// are 32/39 and 7/39.
func (s *Stub) FetchMarketSnapshot(_ context.Context, marketID string) (*domain.MarketSnapshot, error) {
	if marketID == "" {
		return nil, fmt.Errorf("stub provider: empty market id")
	}
	name := "USDC"
	if marketID != stubCometAddress {
		name = marketID
	}
	return &domain.MarketSnapshot{
		MarketID:             marketID,
		MarketName:           name,
		TotalSupply:          1_000_000_000,
		TotalBorrow:          750_000_000,
		Utilization:          0.75,
		LiquidationThreshold: 0.90,
		Collateral: []domain.CollateralAsset{
			{
				AssetID:           stubWETHAddress,
				Symbol:            "WETH",
				Price:             2000,
				Quantity:          400_000,
				Weight:            32.0 / 39.0,
				Volatility:        0.04,
				LiquidationFactor: 0.91,
			},
			{
				AssetID:           stubWBTCAddress,
				Symbol:            "WBTC",
				Price:             35_000,
				Quantity:          5_000,
				Weight:            7.0 / 39.0,
				Volatility:        0.05,
				LiquidationFactor: 0.88,
			},
		},
		Timestamp: s.now().UTC(),
	}, nil
}

// FetchUserPosition returns a healthy account holding 0.5 WETH of
// collateral and no borrow.
func (s *Stub) FetchUserPosition(_ context.Context, marketID, userAddr string) (*domain.UserPosition, error) {
	if userAddr == "" {
		return nil, fmt.Errorf("stub provider: empty user address")
	}
	return &domain.UserPosition{
		Address:         userAddr,
		BorrowBalance:   0,
		CollateralValue: 0.5 * 2000,
		CollateralBalances: map[string]float64{
			stubWETHAddress: 0.5,
		},
	}, nil
}
