// Package provider fetches market snapshots and user positions from the
// chain. Callers treat provider failures as opaque and non-retriable;
// retry policy belongs to an outer loop.
package provider

import (
	"context"

	"cometguard/internal/domain"
)

// MarketConfig identifies one Comet deployment to watch.
type MarketConfig struct {
	// MarketID is the Comet proxy address, hex. Doubles as the cache key.
	MarketID string `yaml:"comet_address"`
	Name     string `yaml:"name"`
}

// SnapshotProvider is the on-chain data collaborator consumed by the
// assessment engine.
type SnapshotProvider interface {
	// FetchMarketSnapshot captures the current state of one market.
	FetchMarketSnapshot(ctx context.Context, marketID string) (*domain.MarketSnapshot, error)

	// FetchUserPosition captures one account's position in a market.
	FetchUserPosition(ctx context.Context, marketID, userAddr string) (*domain.UserPosition, error)
}
