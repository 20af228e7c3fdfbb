package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/RoiLaboratories/Tower-Exchange/internal/tokens"
	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// Engine executes one bounded batch of due recurring orders per Run.
// It holds no state across runs: every Run re-reads the due set fresh.
type Engine struct {
	store     Store
	quotes    QuoteProvider
	submitter Submitter
	activity  ActivityLogger
	registry  *tokens.Registry
	cfg       Config

	id  string
	now func() time.Time
}

// Summary reports one Run. Failed includes store-level faults, which
// StoreErrors also counts separately because they indicate possible
// schedule inconsistency rather than ordinary swap failure.
type Summary struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	StoreErrors int
	TotalVolume decimal.Decimal
}

// New creates an execution engine. cfg fields left zero take defaults.
func New(store Store, quotes QuoteProvider, submitter Submitter, activity ActivityLogger, registry *tokens.Registry, cfg Config) *Engine {
	return &Engine{
		store:     store,
		quotes:    quotes,
		submitter: submitter,
		activity:  activity,
		registry:  registry,
		cfg:       cfg.withDefaults(),
		id:        uuid.New().String(),
		now:       time.Now,
	}
}

// Run processes all currently due orders, up to the batch cap, and
// returns the run summary. Returns ErrRunInProgress when another
// engine instance holds the run lease.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	started := e.now()
	runID := uuid.New().String()
	logger := log.With().
		Str("component", "execution_engine").
		Str("run_id", runID).
		Logger()

	acquired, err := e.store.AcquireRunLease(ctx, e.id, e.cfg.RunLeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	if !acquired {
		logger.Info().Msg("run lease held elsewhere, skipping this trigger")
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := e.store.ReleaseRunLease(context.WithoutCancel(ctx), e.id); err != nil {
			logger.Warn().Err(err).Msg("failed to release run lease, it will expire on its own")
		}
	}()

	due, err := e.store.FetchDue(ctx, started, e.cfg.MaxOrdersPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due orders: %w", err)
	}

	logger.Info().
		Int("due_orders", len(due)).
		Int("batch_cap", e.cfg.MaxOrdersPerRun).
		Int("concurrency", e.cfg.Concurrency).
		Msg("starting run")

	results := e.processBatch(ctx, due, started)

	summary := &Summary{
		RunID:       runID,
		StartedAt:   started,
		TotalVolume: decimal.Zero,
	}
	for _, r := range results {
		switch r.outcome {
		case outcomeConfirmed:
			summary.Processed++
			summary.Succeeded++
			summary.TotalVolume = summary.TotalVolume.Add(r.volume)
		case outcomeFailed:
			summary.Processed++
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		}
		if r.storeError {
			summary.StoreErrors++
		}
	}
	summary.Duration = time.Since(started)

	event := logger.Info()
	if summary.StoreErrors > 0 {
		// Operator-visible: executions and schedules may have diverged.
		event = logger.Error()
	}
	event.
		Int("processed", summary.Processed).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("store_errors", summary.StoreErrors).
		Str("total_volume", summary.TotalVolume.String()).
		Dur("elapsed", summary.Duration).
		Msg("run complete")

	return summary, nil
}

// walletGroup keeps one wallet's due orders in due order, so their
// submissions stay strictly sequential and cannot race on the wallet
// nonce.
type walletGroup struct {
	indexes []int
	orders  []types.RecurringOrder
}

// processBatch fans wallet groups out over a bounded pool. Results are
// written to fixed slots, one per due order.
func (e *Engine) processBatch(ctx context.Context, due []types.RecurringOrder, now time.Time) []orderResult {
	results := make([]orderResult, len(due))

	groups := make(map[string]*walletGroup)
	walletOrder := make([]string, 0, len(due))
	for i, order := range due {
		g, ok := groups[order.WalletAddress]
		if !ok {
			g = &walletGroup{}
			groups[order.WalletAddress] = g
			walletOrder = append(walletOrder, order.WalletAddress)
		}
		g.indexes = append(g.indexes, i)
		g.orders = append(g.orders, order)
	}

	p := pool.New().WithMaxGoroutines(e.cfg.Concurrency)
	for _, wallet := range walletOrder {
		g := groups[wallet]
		p.Go(func() {
			for i, order := range g.orders {
				results[g.indexes[i]] = e.processOrder(ctx, order, now)
			}
		})
	}
	p.Wait()

	return results
}
