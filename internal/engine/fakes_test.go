package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RoiLaboratories/Tower-Exchange/internal/tokens"
	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

var errDuplicateCycle = errors.New("duplicate cycle key")

// fakeStore is an in-memory Store honoring the same contracts as the
// real one: due selection sorted and capped, atomic-looking advances,
// unique cycle keys, lease claim semantics.
type fakeStore struct {
	mu                 sync.Mutex
	orders             map[string]*types.RecurringOrder
	executions         []*types.Execution
	cycleKeys          map[string]struct{}
	leaseHolder        string
	leaseExpiry        time.Time
	failExecutionWrite bool
	failAdvanceFor     map[string]bool
}

func newFakeStore(orders ...types.RecurringOrder) *fakeStore {
	s := &fakeStore{
		orders:         make(map[string]*types.RecurringOrder),
		cycleKeys:      make(map[string]struct{}),
		failAdvanceFor: make(map[string]bool),
	}
	for i := range orders {
		o := orders[i]
		s.orders[o.OrderID] = &o
	}
	return s
}

func (s *fakeStore) FetchDue(_ context.Context, now time.Time, limit int) ([]types.RecurringOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []types.RecurringOrder
	for _, o := range s.orders {
		if o.Active && !o.NextExecutionDate.After(now) {
			due = append(due, *o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextExecutionDate.Before(due[j].NextExecutionDate)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeStore) GetOrder(_ context.Context, orderID string) (*types.RecurringOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (s *fakeStore) CreateExecution(_ context.Context, execution *types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failExecutionWrite {
		return errors.New("store write failed")
	}
	if _, exists := s.cycleKeys[execution.CycleKey]; exists {
		return errDuplicateCycle
	}
	s.cycleKeys[execution.CycleKey] = struct{}{}
	s.executions = append(s.executions, execution)
	return nil
}

func (s *fakeStore) AdvanceOrder(_ context.Context, orderID string, nextDue time.Time, deactivate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdvanceFor[orderID] {
		return errors.New("advance failed")
	}
	o, ok := s.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	o.NextExecutionDate = nextDue
	o.ExecutionCount++
	if deactivate {
		o.Active = false
	}
	return nil
}

func (s *fakeStore) AcquireRunLease(_ context.Context, holderID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaseHolder != "" && s.leaseHolder != holderID && s.leaseExpiry.After(time.Now()) {
		return false, nil
	}
	s.leaseHolder = holderID
	s.leaseExpiry = time.Now().Add(ttl)
	return true, nil
}

func (s *fakeStore) ReleaseRunLease(_ context.Context, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leaseHolder == holderID {
		s.leaseHolder = ""
	}
	return nil
}

func (s *fakeStore) deactivate(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.Active = false
	}
}

func (s *fakeStore) order(orderID string) types.RecurringOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[orderID]
}

func (s *fakeStore) executionsFor(orderID string) []*types.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Execution
	for _, e := range s.executions {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// fakeQuoteProvider answers quotes through an optional respond hook;
// without one it returns a plain route at price 1.
type fakeQuoteProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(sourceToken, targetToken string, amount decimal.Decimal) (*types.Quote, error)
}

func (q *fakeQuoteProvider) GetQuote(_ context.Context, sourceToken, targetToken string, amount decimal.Decimal) (*types.Quote, error) {
	q.mu.Lock()
	q.calls++
	respond := q.respond
	q.mu.Unlock()

	if respond != nil {
		return respond(sourceToken, targetToken, amount)
	}
	return &types.Quote{
		Route:          fmt.Sprintf("%s->%s", sourceToken, targetToken),
		Price:          decimal.NewFromInt(1),
		ExpectedOutput: amount,
	}, nil
}

func (q *fakeQuoteProvider) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type submission struct {
	wallet string
	key    string
	start  time.Time
	end    time.Time
}

// fakeSubmitter records every submission with wall-clock start/end so
// tests can assert that same-wallet submissions never overlap.
type fakeSubmitter struct {
	mu          sync.Mutex
	delay       time.Duration
	err         error
	submissions []submission
}

func (f *fakeSubmitter) Submit(_ context.Context, swap types.SwapRequest) (string, error) {
	start := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.submissions = append(f.submissions, submission{
		wallet: swap.WalletAddress,
		key:    swap.IdempotencyKey,
		start:  start,
		end:    time.Now(),
	})
	err := f.err
	n := len(f.submissions)
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0xtx%d", n), nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

type activityRecord struct {
	wallet       string
	activityType string
	status       string
}

type fakeActivityLogger struct {
	mu      sync.Mutex
	records []activityRecord
	err     error
}

func (f *fakeActivityLogger) LogActivity(_ context.Context, walletAddress, activityType, _, _ string, _ decimal.Decimal, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, activityRecord{
		wallet:       walletAddress,
		activityType: activityType,
		status:       status,
	})
	return nil
}

func testRegistry() *tokens.Registry {
	return tokens.NewRegistry(map[string]int32{
		"ETH": 18, "WETH": 18, "USDC": 6, "DAI": 18, "WBTC": 8, "TOWER": 18,
	})
}

func testConfig() Config {
	return Config{
		MaxOrdersPerRun:       100,
		APICallTimeout:        time.Second,
		OrderExecutionTimeout: time.Second,
		MaxRetryAttempts:      3,
		RetryBaseDelay:        time.Millisecond,
		Concurrency:           1,
		RunLeaseTTL:           time.Minute,
	}
}

func newTestEngine(store Store, q QuoteProvider, sub Submitter, cfg Config) (*Engine, *fakeActivityLogger) {
	act := &fakeActivityLogger{}
	e := New(store, q, sub, act, testRegistry(), cfg)
	return e, act
}

func testOrder(id, wallet, frequency string, due time.Time) types.RecurringOrder {
	return types.RecurringOrder{
		OrderID:           id,
		WalletAddress:     wallet,
		Side:              types.SideBuy,
		SourceToken:       "USDC",
		TargetToken:       "ETH",
		Amount:            decimal.NewFromInt(100),
		Frequency:         frequency,
		StartDate:         due.AddDate(0, 0, -7),
		NextExecutionDate: due,
		Active:            true,
		Signature:         "0xsig",
	}
}
