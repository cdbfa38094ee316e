package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cometguard/internal/domain"
	"cometguard/internal/storage"
)

// AssessmentStore implements storage.AssessmentStore using PostgreSQL.
// Findings are stored as a jsonb column: they are read back whole, never
// queried by field.
type AssessmentStore struct {
	pool *Pool
}

// NewAssessmentStore creates a new AssessmentStore.
func NewAssessmentStore(pool *Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AssessmentStore = (*AssessmentStore)(nil)

// Insert appends a new assessment record.
func (s *AssessmentStore) Insert(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.MarketID == "" {
		return storage.ErrInvalidInput
	}

	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	query := `
		INSERT INTO market_assessments (
			market_id, market_name, risk_score, findings, snapshot_time
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query,
		a.MarketID,
		a.MarketName,
		a.RiskScore,
		findings,
		a.SnapshotTime,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent assessment for a market.
func (s *AssessmentStore) GetLatest(ctx context.Context, marketID string) (*domain.RiskAssessment, error) {
	query := `
		SELECT market_id, market_name, risk_score, findings, snapshot_time
		FROM market_assessments
		WHERE market_id = $1
		ORDER BY snapshot_time DESC, id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, marketID)
	a, err := scanAssessment(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest assessment: %w", err)
	}
	return a, nil
}

// GetByMarket retrieves up to limit assessments, most recent first.
func (s *AssessmentStore) GetByMarket(ctx context.Context, marketID string, limit int) ([]*domain.RiskAssessment, error) {
	query := `
		SELECT market_id, market_name, risk_score, findings, snapshot_time
		FROM market_assessments
		WHERE market_id = $1
		ORDER BY snapshot_time DESC, id DESC
	`
	args := []any{marketID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get assessments by market: %w", err)
	}
	defer rows.Close()

	var result []*domain.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessment rows: %w", err)
	}
	return result, nil
}

// ListMarkets returns the distinct market ids, sorted ascending.
func (s *AssessmentStore) ListMarkets(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT market_id FROM market_assessments ORDER BY market_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list assessed markets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan market id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market ids: %w", err)
	}
	return ids, nil
}

// scanAssessment scans one row, decoding the findings jsonb payload.
func scanAssessment(row pgx.Row) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var findings []byte

	err := row.Scan(
		&a.MarketID,
		&a.MarketName,
		&a.RiskScore,
		&findings,
		&a.SnapshotTime,
	)
	if err != nil {
		return nil, err
	}

	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &a.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
	}
	return &a, nil
}
