package storage

import (
	"context"

	"cometguard/internal/domain"
)

// AssessmentStore provides access to assessment history storage. Records are
// append-only: one row per assessment cycle per market.
type AssessmentStore interface {
	// Insert appends a new assessment record.
	Insert(ctx context.Context, a *domain.RiskAssessment) error

	// GetLatest retrieves the most recent assessment for a market.
	// Returns ErrNotFound if the market has never been assessed.
	GetLatest(ctx context.Context, marketID string) (*domain.RiskAssessment, error)

	// GetByMarket retrieves up to limit assessments for a market, most
	// recent first. limit <= 0 means no limit.
	GetByMarket(ctx context.Context, marketID string, limit int) ([]*domain.RiskAssessment, error)

	// ListMarkets returns the distinct market ids with at least one
	// recorded assessment, sorted ascending.
	ListMarkets(ctx context.Context) ([]string, error)
}
