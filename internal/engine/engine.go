// Package engine coordinates snapshot fetching, scoring and simulation
// across markets. Fan-out is bounded by a configured parallelism limit so
// the upstream data provider is never overwhelmed; one market's failure is
// recorded and reported without cancelling sibling work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cometguard/internal/cache"
	"cometguard/internal/domain"
	"cometguard/internal/provider"
	"cometguard/internal/risk"
	"cometguard/internal/simulation"
)

// ErrTimeout marks a market whose fetch had not completed by the caller's
// deadline. The in-flight fetch is not aborted; it may still populate the
// cache for future callers.
var ErrTimeout = errors.New("assessment timed out")

// MarketResult pairs one requested market with either its assessment or an
// explicit failure reason. Every requested market appears in the output;
// nothing is silently omitted.
type MarketResult struct {
	MarketID   string                 `json:"market_id"`
	Assessment *domain.RiskAssessment `json:"assessment,omitempty"`
	Err        error                  `json:"-"`
}

// ScenarioOutcome pairs one scenario with its result or its failure.
type ScenarioOutcome struct {
	Description string                   `json:"description"`
	Result      *domain.SimulationResult `json:"result,omitempty"`
	Err         error                    `json:"-"`
}

// UserPositionReport is the health check result for one account.
type UserPositionReport struct {
	MarketID        string          `json:"market_id"`
	MarketName      string          `json:"market_name"`
	User            string          `json:"user"`
	HealthFactor    float64         `json:"health_factor"`
	Healthy         bool            `json:"healthy"`
	BorrowBalance   float64         `json:"borrow_balance"`
	CollateralValue float64         `json:"collateral_value"`
	Finding         *domain.Finding `json:"finding,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Provider provider.SnapshotProvider
	Cache    *cache.SnapshotCache
	Params   domain.RiskParameters

	// Parallelism caps simultaneous fetches/scorings; minimum 1.
	Parallelism int
	// Timeout bounds each AssessRisks/Simulate/CheckUser call.
	Timeout time.Duration

	Logger *zap.Logger
}

// Engine is the assessment orchestrator.
type Engine struct {
	provider    provider.SnapshotProvider
	cache       *cache.SnapshotCache
	scorer      *risk.Scorer
	sim         *simulation.Simulator
	parallelism int
	timeout     time.Duration
	logger      *zap.Logger
}

// New creates an engine. Zero Parallelism defaults to 4, zero Timeout to
// 30 seconds, nil Logger to a no-op logger.
func New(opts Options) *Engine {
	if opts.Parallelism < 1 {
		opts.Parallelism = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	scorer := risk.NewScorer(opts.Params)
	return &Engine{
		provider:    opts.Provider,
		cache:       opts.Cache,
		scorer:      scorer,
		sim:         simulation.New(scorer),
		parallelism: opts.Parallelism,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
}

// AssessRisks assesses every requested market concurrently, up to the
// parallelism bound. The result slice preserves the caller-supplied order
// regardless of completion order.
func (e *Engine) AssessRisks(ctx context.Context, marketIDs []string) []MarketResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results := make([]MarketResult, len(marketIDs))

	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)
	for i, id := range marketIDs {
		g.Go(func() error {
			results[i] = e.assessOne(ctx, id)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("market assessment failed",
				zap.String("market", r.MarketID), zap.Error(r.Err))
		}
	}
	return results
}

func (e *Engine) assessOne(ctx context.Context, marketID string) MarketResult {
	snap, err := e.fetchSnapshot(ctx, marketID)
	if err != nil {
		return MarketResult{MarketID: marketID, Err: err}
	}
	return MarketResult{MarketID: marketID, Assessment: e.scorer.Assess(snap)}
}

// Simulate fetches one snapshot and applies each scenario against it.
// A scenario's failure is recorded in its outcome without aborting the
// batch; only the snapshot fetch itself is fatal.
func (e *Engine) Simulate(ctx context.Context, marketID string, scenarios []domain.Scenario) ([]ScenarioOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.fetchSnapshot(ctx, marketID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ScenarioOutcome, len(scenarios))
	for i, sc := range scenarios {
		result, err := e.sim.Run(snap, sc)
		outcomes[i] = ScenarioOutcome{Description: sc.Describe(), Result: result, Err: err}
		if err != nil {
			e.logger.Warn("scenario failed",
				zap.String("market", marketID),
				zap.String("scenario", sc.Describe()),
				zap.Error(err))
		}
	}
	return outcomes, nil
}

// CheckUser computes one account's liquidation health in a market.
func (e *Engine) CheckUser(ctx context.Context, marketID, userAddr string) (*UserPositionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.fetchSnapshot(ctx, marketID)
	if err != nil {
		return nil, err
	}

	pos, err := e.provider.FetchUserPosition(ctx, marketID, userAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch position for %s in market %s: %w", userAddr, marketID, err)
	}

	hf := pos.HealthFactor(snap.LiquidationThreshold)
	report := &UserPositionReport{
		MarketID:        snap.MarketID,
		MarketName:      snap.MarketName,
		User:            pos.Address,
		HealthFactor:    hf,
		Healthy:         hf > 1.0,
		BorrowBalance:   pos.BorrowBalance,
		CollateralValue: pos.CollateralValue,
		Finding:         liquidationFinding(hf, e.scorer.Params().LiquidationThresholdBuffer),
	}
	return report, nil
}

// ProtocolMetrics summarizes market size and liquidity for each requested
// market. Markets whose snapshot cannot be fetched are skipped.
func (e *Engine) ProtocolMetrics(ctx context.Context, marketIDs []string) []domain.ProtocolMetrics {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	metrics := make([]domain.ProtocolMetrics, 0, len(marketIDs))
	for _, id := range marketIDs {
		snap, err := e.fetchSnapshot(ctx, id)
		if err != nil {
			e.logger.Warn("protocol metrics skipped",
				zap.String("market", id), zap.Error(err))
			continue
		}
		metrics = append(metrics, domain.ComputeProtocolMetrics(snap))
	}
	return metrics
}

// Snapshot returns the (possibly cached) snapshot for one market. Callers
// that need raw market state next to an assessment read it from here so the
// provider is not hit twice.
func (e *Engine) Snapshot(ctx context.Context, marketID string) (*domain.MarketSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.fetchSnapshot(ctx, marketID)
}

// fetchSnapshot goes through the cache, mapping a deadline into ErrTimeout
// and wrapping provider failures with the market id.
func (e *Engine) fetchSnapshot(ctx context.Context, marketID string) (*domain.MarketSnapshot, error) {
	snap, err := e.cache.GetOrFetch(ctx, marketID, func(fctx context.Context) (*domain.MarketSnapshot, error) {
		return e.provider.FetchMarketSnapshot(fctx, marketID)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("market %s: %w", marketID, ErrTimeout)
		}
		return nil, fmt.Errorf("fetch market %s: %w", marketID, err)
	}
	return snap, nil
}

// liquidationFinding grades proximity to the liquidation boundary. Healthy
// positions well clear of the buffer produce no finding.
func liquidationFinding(healthFactor, buffer float64) *domain.Finding {
	if healthFactor >= 1.0+buffer {
		return nil
	}
	severity := domain.SeverityMedium
	if healthFactor <= 1.0 || healthFactor < 1.0+buffer/2 {
		severity = domain.SeverityHigh
	}
	return &domain.Finding{
		Severity: severity,
		Description: fmt.Sprintf("position health factor %.2f is close to or below the liquidation threshold",
			healthFactor),
		Factor: domain.FactorLiquidation,
	}
}
