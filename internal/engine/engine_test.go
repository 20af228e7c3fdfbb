package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

var fixedNow = time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)

func runAt(t *testing.T, e *Engine, at time.Time) *Summary {
	t.Helper()
	e.now = func() time.Time { return at }
	summary, err := e.Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestRunProcessesDueOrders(t *testing.T) {
	store := newFakeStore(
		testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-2*time.Hour)),
		testOrder("ord-2", "0xbbb", types.FrequencyWeekly, fixedNow.Add(-time.Hour)),
		testOrder("ord-3", "0xccc", types.FrequencyHourly, fixedNow.Add(-time.Minute)),
	)
	submitter := &fakeSubmitter{}
	e, activityLog := newTestEngine(store, &fakeQuoteProvider{}, submitter, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.StoreErrors)
	assert.True(t, summary.TotalVolume.Equal(decimal.NewFromInt(300)))

	for _, id := range []string{"ord-1", "ord-2", "ord-3"} {
		execs := store.executionsFor(id)
		require.Len(t, execs, 1, id)
		assert.Equal(t, types.ExecutionStatusSuccessful, execs[0].Status)
		assert.NotEmpty(t, execs[0].TxHash)
		assert.Empty(t, execs[0].ErrorMessage)
	}

	// Every execution leaves an audit record.
	assert.Len(t, activityLog.records, 3)
}

func TestRunAdvancesScheduleFromProcessingInstant(t *testing.T) {
	// Three weeks of backlog: the new due time is now+7d, not the
	// stale scheduled time +7d.
	staleDue := fixedNow.AddDate(0, 0, -21)
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyWeekly, staleDue))
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	runAt(t, e, fixedNow)

	order := store.order("ord-1")
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), order.NextExecutionDate)
	assert.Equal(t, 1, order.ExecutionCount)
}

func TestRunExactlyOneExecutionDespiteRetries(t *testing.T) {
	quotes := &fakeQuoteProvider{}
	attempts := 0
	quotes.respond = func(source, target string, amount decimal.Decimal) (*types.Quote, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("quote API timeout")
		}
		return &types.Quote{Route: "USDC->ETH", Price: decimal.NewFromInt(1), ExpectedOutput: amount}, nil
	}

	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	e, _ := newTestEngine(store, quotes, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, attempts)
	require.Len(t, store.executionsFor("ord-1"), 1)
	assert.Equal(t, types.ExecutionStatusSuccessful, store.executionsFor("ord-1")[0].Status)
}

func TestRunQuoteRetriesExhausted(t *testing.T) {
	quotes := &fakeQuoteProvider{
		respond: func(string, string, decimal.Decimal) (*types.Quote, error) {
			return nil, errors.New("quote API timeout")
		},
	}
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	submitter := &fakeSubmitter{}
	e, _ := newTestEngine(store, quotes, submitter, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 3, quotes.callCount())
	assert.Equal(t, 0, submitter.count())

	execs := store.executionsFor("ord-1")
	require.Len(t, execs, 1)
	assert.Equal(t, types.ExecutionStatusFailed, execs[0].Status)
	assert.Contains(t, execs[0].ErrorMessage, string(ErrorKindQuoteUnavailable))

	// A failed cycle is consumed: the schedule still advances.
	order := store.order("ord-1")
	assert.Equal(t, fixedNow.AddDate(0, 0, 1), order.NextExecutionDate)
	assert.Equal(t, 1, order.ExecutionCount)
}

func TestRunSubmissionRetriesExhausted(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("nonce too low")}
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, submitter, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, submitter.count())

	execs := store.executionsFor("ord-1")
	require.Len(t, execs, 1)
	assert.Contains(t, execs[0].ErrorMessage, string(ErrorKindSubmissionFailed))
	assert.Equal(t, 1, store.order("ord-1").ExecutionCount)
}

func TestRunUnsupportedTokenFailsWithoutQuote(t *testing.T) {
	order := testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour))
	order.SourceToken = "SHIBX"
	store := newFakeStore(order)
	quotes := &fakeQuoteProvider{}
	e, _ := newTestEngine(store, quotes, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, quotes.callCount())

	execs := store.executionsFor("ord-1")
	require.Len(t, execs, 1)
	assert.Contains(t, execs[0].ErrorMessage, string(ErrorKindUnsupportedToken))
	// Advancement happens even for non-retriable failures.
	assert.Equal(t, 1, store.order("ord-1").ExecutionCount)
}

func TestRunHonorsBatchCap(t *testing.T) {
	var orders []types.RecurringOrder
	for i := 0; i < 150; i++ {
		due := fixedNow.Add(-time.Duration(150-i) * time.Minute)
		orders = append(orders, testOrder(fmt.Sprintf("ord-%03d", i), fmt.Sprintf("0x%03d", i), types.FrequencyDaily, due))
	}
	store := newFakeStore(orders...)
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 100, summary.Processed)

	// The 100 earliest-due orders were processed, the 50 latest left
	// untouched with their original schedules.
	processed, untouched := 0, 0
	for i := 0; i < 150; i++ {
		order := store.order(fmt.Sprintf("ord-%03d", i))
		if order.ExecutionCount > 0 {
			processed++
			assert.Less(t, i, 100)
		} else {
			untouched++
			assert.GreaterOrEqual(t, i, 100)
			assert.Equal(t, fixedNow.Add(-time.Duration(150-i)*time.Minute), order.NextExecutionDate)
		}
	}
	assert.Equal(t, 100, processed)
	assert.Equal(t, 50, untouched)
}

func TestRunDeactivatesOrderPastEndDate(t *testing.T) {
	end := fixedNow.AddDate(0, 0, 2)
	order := testOrder("ord-1", "0xaaa", types.FrequencyWeekly, fixedNow.Add(-time.Hour))
	order.EndDate = &end
	store := newFakeStore(order)
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	runAt(t, e, fixedNow)

	after := store.order("ord-1")
	assert.False(t, after.Active)
	assert.Equal(t, 1, after.ExecutionCount)

	// An inactive order never comes back from due selection.
	due, err := store.FetchDue(context.Background(), fixedNow.AddDate(0, 1, 0), 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunIsolatesPanickingOrder(t *testing.T) {
	quotes := &fakeQuoteProvider{
		respond: func(source, target string, amount decimal.Decimal) (*types.Quote, error) {
			if source == "DAI" {
				panic("quote provider bug")
			}
			return &types.Quote{Route: source + "->" + target, Price: decimal.NewFromInt(1), ExpectedOutput: amount}, nil
		},
	}

	bad := testOrder("ord-bad", "0xbbb", types.FrequencyDaily, fixedNow.Add(-2*time.Hour))
	bad.SourceToken = "DAI"
	store := newFakeStore(
		testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-3*time.Hour)),
		bad,
		testOrder("ord-2", "0xccc", types.FrequencyDaily, fixedNow.Add(-time.Hour)),
	)
	e, _ := newTestEngine(store, quotes, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	execs := store.executionsFor("ord-bad")
	require.Len(t, execs, 1)
	assert.Equal(t, types.ExecutionStatusFailed, execs[0].Status)
	// The panicking order still consumed its cycle.
	assert.Equal(t, 1, store.order("ord-bad").ExecutionCount)
}

func TestRunNeverSubmitsSameWalletConcurrently(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 4

	var orders []types.RecurringOrder
	for w := 0; w < 3; w++ {
		wallet := fmt.Sprintf("0xwallet%d", w)
		for i := 0; i < 3; i++ {
			due := fixedNow.Add(-time.Duration(10*w+i+1) * time.Minute)
			orders = append(orders, testOrder(fmt.Sprintf("ord-%d-%d", w, i), wallet, types.FrequencyHourly, due))
		}
	}
	store := newFakeStore(orders...)
	submitter := &fakeSubmitter{delay: 5 * time.Millisecond}
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, submitter, cfg)

	summary := runAt(t, e, fixedNow)
	assert.Equal(t, 9, summary.Succeeded)

	// No two submissions for one wallet may overlap in time.
	byWallet := make(map[string][]submission)
	for _, s := range submitter.submissions {
		byWallet[s.wallet] = append(byWallet[s.wallet], s)
	}
	assert.Len(t, byWallet, 3)
	for wallet, subs := range byWallet {
		require.Len(t, subs, 3, wallet)
		for i := 1; i < len(subs); i++ {
			assert.False(t, subs[i].start.Before(subs[i-1].end),
				"wallet %s submissions overlap: %v before %v ended", wallet, subs[i].start, subs[i-1].end)
		}
	}
}

func TestRunSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	store.leaseHolder = "another-instance"
	store.leaseExpiry = time.Now().Add(time.Hour)

	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())
	e.now = func() time.Time { return fixedNow }

	_, err := e.Run(context.Background())

	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, store.executionsFor("ord-1"))
	assert.Equal(t, 0, store.order("ord-1").ExecutionCount)
}

func TestRunStealsExpiredLease(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	store.leaseHolder = "crashed-instance"
	store.leaseExpiry = time.Now().Add(-time.Minute)

	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunMidCancellationSuppressesExecution(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	quotes := &fakeQuoteProvider{
		respond: func(source, target string, amount decimal.Decimal) (*types.Quote, error) {
			// Cancellation lands while the swap pipeline is running.
			store.deactivate("ord-1")
			return &types.Quote{Route: "USDC->ETH", Price: decimal.NewFromInt(1), ExpectedOutput: amount}, nil
		},
	}
	e, _ := newTestEngine(store, quotes, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, store.executionsFor("ord-1"))
	// No advancement either: the order is terminal.
	assert.Equal(t, 0, store.order("ord-1").ExecutionCount)
}

func TestRunCancelledBeforeProcessingIsSkipped(t *testing.T) {
	order := testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour))
	store := newFakeStore(order)
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	// Simulate a cancellation landing between selection and processing
	// by deactivating after the engine snapshot would have included it.
	// processOrder re-checks and skips.
	store.deactivate("ord-1")
	result := e.processOrder(context.Background(), order, fixedNow)

	assert.Equal(t, outcomeSkipped, result.outcome)
	assert.Empty(t, store.executionsFor("ord-1"))
}

func TestRunCountsExecutionWriteFailureAsStoreError(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	store.failExecutionWrite = true
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.StoreErrors)
	// Nothing advanced: the cycle stays due for the next run.
	assert.Equal(t, 0, store.order("ord-1").ExecutionCount)
}

func TestRunCountsAdvanceFailureAsStoreError(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	store.failAdvanceFor["ord-1"] = true
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	// The swap confirmed and its execution is recorded, but the
	// schedule did not move: loud store error, still a success.
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.StoreErrors)
	require.Len(t, store.executionsFor("ord-1"), 1)
}

func TestRunAdvisoryActivityFailureDoesNotFailOrder(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(-time.Hour)))
	act := &fakeActivityLogger{err: errors.New("activity store down")}
	e := New(store, &fakeQuoteProvider{}, &fakeSubmitter{}, act, testRegistry(), testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.StoreErrors)
}

func TestRunWithNoDueOrders(t *testing.T) {
	store := newFakeStore(testOrder("ord-1", "0xaaa", types.FrequencyDaily, fixedNow.Add(48*time.Hour)))
	e, _ := newTestEngine(store, &fakeQuoteProvider{}, &fakeSubmitter{}, testConfig())

	summary := runAt(t, e, fixedNow)

	assert.Equal(t, 0, summary.Processed)
	assert.True(t, summary.TotalVolume.IsZero())
}
