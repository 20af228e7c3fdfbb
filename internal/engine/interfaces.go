package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// Store is the engine's view of the order store. All schedule
// mutations go through it so its atomicity guarantees, not
// read-modify-write races, protect the schedule.
type Store interface {
	// FetchDue returns active orders with next_execution_date <= now,
	// oldest due first, capped at limit.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringOrder, error)
	// GetOrder returns the order or (nil, nil) when it does not exist.
	GetOrder(ctx context.Context, orderID string) (*types.RecurringOrder, error)
	// CreateExecution appends one immutable execution record. The
	// record's cycle key is unique per due cycle.
	CreateExecution(ctx context.Context, execution *types.Execution) error
	// AdvanceOrder sets the next due time, increments the execution
	// counter, and optionally deactivates the order, atomically.
	AdvanceOrder(ctx context.Context, orderID string, nextDue time.Time, deactivate bool) error
	// AcquireRunLease claims the single run lease; false means another
	// live holder owns it.
	AcquireRunLease(ctx context.Context, holderID string, ttl time.Duration) (bool, error)
	ReleaseRunLease(ctx context.Context, holderID string) error
}

// QuoteProvider returns a price/route for a token pair and amount.
// Implementations must be safe to retry.
type QuoteProvider interface {
	GetQuote(ctx context.Context, sourceToken, targetToken string, amount decimal.Decimal) (*types.Quote, error)
}

// Submitter signs and broadcasts one swap. Implementations must honor
// at-most-once semantics for the request's idempotency key.
type Submitter interface {
	Submit(ctx context.Context, swap types.SwapRequest) (string, error)
}

// ActivityLogger records audit events. Advisory: the engine logs its
// failures and moves on.
type ActivityLogger interface {
	LogActivity(ctx context.Context, walletAddress, activityType, sourceToken, targetToken string, amount decimal.Decimal, status string) error
}

// Config holds the engine tunables. It is passed in at construction;
// the engine keeps no ambient global state, so instances in tests do
// not interfere.
type Config struct {
	MaxOrdersPerRun       int
	APICallTimeout        time.Duration
	OrderExecutionTimeout time.Duration
	MaxRetryAttempts      int
	RetryBaseDelay        time.Duration
	Concurrency           int
	RunLeaseTTL           time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOrdersPerRun <= 0 {
		c.MaxOrdersPerRun = 100
	}
	if c.APICallTimeout <= 0 {
		c.APICallTimeout = 10 * time.Second
	}
	if c.OrderExecutionTimeout <= 0 {
		c.OrderExecutionTimeout = 30 * time.Second
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.RunLeaseTTL <= 0 {
		c.RunLeaseTTL = 10 * time.Minute
	}
	return c
}
