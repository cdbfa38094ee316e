// Package memory provides in-memory storage implementations, used in tests
// and when the engine runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"cometguard/internal/domain"
	"cometguard/internal/storage"
)

// AssessmentStore is an in-memory implementation of storage.AssessmentStore.
type AssessmentStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.RiskAssessment // keyed by market id, insertion order
}

// NewAssessmentStore creates a new in-memory assessment store.
func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{
		data: make(map[string][]*domain.RiskAssessment),
	}
}

var _ storage.AssessmentStore = (*AssessmentStore)(nil)

// Insert appends a new assessment record.
func (s *AssessmentStore) Insert(_ context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[a.MarketID] = append(s.data[a.MarketID], cloneAssessment(a))
	return nil
}

// GetLatest retrieves the most recent assessment for a market.
func (s *AssessmentStore) GetLatest(_ context.Context, marketID string) (*domain.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[marketID]
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return cloneAssessment(records[len(records)-1]), nil
}

// GetByMarket retrieves up to limit assessments, most recent first.
func (s *AssessmentStore) GetByMarket(_ context.Context, marketID string, limit int) ([]*domain.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[marketID]
	n := len(records)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.RiskAssessment, 0, n)
	for i := len(records) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, cloneAssessment(records[i]))
	}
	return result, nil
}

// ListMarkets returns the distinct market ids, sorted ascending.
func (s *AssessmentStore) ListMarkets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// cloneAssessment copies a record so callers and the store never share
// findings slices.
func cloneAssessment(a *domain.RiskAssessment) *domain.RiskAssessment {
	out := *a
	if a.Findings != nil {
		out.Findings = make([]domain.Finding, len(a.Findings))
		copy(out.Findings, a.Findings)
	}
	return &out
}
