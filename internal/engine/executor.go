package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// Per-order outcomes within one run.
const (
	outcomeConfirmed = "confirmed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

type orderResult struct {
	outcome    string
	errKind    ErrorKind
	volume     decimal.Decimal
	storeError bool
}

// processOrder drives one due order through its cycle: active
// re-check, swap attempt, execution record, schedule advancement. It
// never returns an error; every fault is absorbed into the result so
// one order can never abort the batch.
func (e *Engine) processOrder(ctx context.Context, order types.RecurringOrder, now time.Time) orderResult {
	logger := log.With().
		Str("component", "execution_engine").
		Str("order_id", order.OrderID).
		Str("wallet_address", order.WalletAddress).
		Str("pair", order.SourceToken+"/"+order.TargetToken).
		Logger()

	// The selection query snapshotted the order; a cancellation may
	// have landed since. Re-check before doing any work.
	fresh, err := e.store.GetOrder(ctx, order.OrderID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to re-read order, leaving its schedule untouched")
		return orderResult{outcome: outcomeSkipped, storeError: true}
	}
	if fresh == nil || !fresh.Active {
		logger.Info().Msg("order cancelled since selection, skipping cycle")
		return orderResult{outcome: outcomeSkipped}
	}
	order = *fresh

	txHash, execErr := e.executeSwap(ctx, order)

	// Cancellation may also land while the swap is in flight. Re-check
	// immediately before writing, so a post-cancellation execution is
	// never recorded. A failed re-read falls through to the write: the
	// recorded cycle is the safer failure mode than a silent skip.
	fresh, err = e.store.GetOrder(ctx, order.OrderID)
	if err == nil && (fresh == nil || !fresh.Active) {
		logger.Info().Msg("order cancelled mid-cycle, suppressing execution record")
		return orderResult{outcome: outcomeSkipped}
	}

	execution := &types.Execution{
		ExecutionID:   uuid.New().String(),
		CycleKey:      types.CycleKeyFor(order.OrderID, order.NextExecutionDate),
		OrderID:       order.OrderID,
		WalletAddress: order.WalletAddress,
		Amount:        order.Amount,
		SourceToken:   order.SourceToken,
		TargetToken:   order.TargetToken,
		ExecutedAt:    now,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	result := orderResult{outcome: outcomeConfirmed, volume: order.Amount}
	if execErr != nil {
		execution.Status = types.ExecutionStatusFailed
		execution.ErrorMessage = execErr.Error()
		result = orderResult{outcome: outcomeFailed, errKind: execErr.Kind}
		logger.Warn().
			Str("error_kind", string(execErr.Kind)).
			Err(execErr.Err).
			Msg("swap attempt failed for this cycle")
	} else {
		execution.Status = types.ExecutionStatusSuccessful
		execution.TxHash = txHash
		logger.Info().Str("tx_hash", txHash).Msg("swap submitted")
	}

	if err := e.store.CreateExecution(ctx, execution); err != nil {
		// The schedule was not advanced either, so the cycle stays due
		// and the next run retries it. Loud: this is a store fault,
		// not a swap failure.
		logger.Error().Err(err).
			Str("cycle_key", execution.CycleKey).
			Msg("failed to write execution record")
		result.storeError = true
		result.outcome = outcomeFailed
		result.volume = decimal.Zero
		return result
	}

	// The schedule advances whether the cycle confirmed or failed; a
	// failed cycle is consumed, never re-attempted in the same period.
	nextDue := NextExecutionTime(order.Frequency, now)
	deactivate := order.EndDate != nil && nextDue.After(*order.EndDate)
	if err := e.store.AdvanceOrder(ctx, order.OrderID, nextDue, deactivate); err != nil {
		// Correctness-critical: the execution is recorded but the due
		// time did not move, so the schedule may be inconsistent.
		logger.Error().Err(err).
			Time("next_execution_date", nextDue).
			Msg("ALERT: execution recorded but schedule advancement failed")
		result.storeError = true
		return result
	}
	if deactivate {
		logger.Info().Time("end_date", *order.EndDate).Msg("order reached its end date, deactivated")
	}

	if err := e.activity.LogActivity(ctx, order.WalletAddress, types.ActivityOrderExecuted, order.SourceToken, order.TargetToken, order.Amount, execution.Status); err != nil {
		logger.Warn().Err(err).Msg("failed to log execution activity")
	}

	return result
}

// executeSwap walks the quote→submit pipeline for one order and
// returns the transaction hash or a classified terminal error. Panics
// from collaborator implementations are contained here.
func (e *Engine) executeSwap(ctx context.Context, order types.RecurringOrder) (txHash string, execErr *ExecutionError) {
	phase := ErrorKindQuoteUnavailable
	defer func() {
		if r := recover(); r != nil {
			execErr = &ExecutionError{Kind: phase, Err: fmt.Errorf("panic during execution: %v", r)}
		}
	}()

	if !e.registry.Supports(order.SourceToken) || !e.registry.Supports(order.TargetToken) {
		return "", &ExecutionError{
			Kind: ErrorKindUnsupportedToken,
			Err:  fmt.Errorf("pair %s/%s is not in the supported token set", order.SourceToken, order.TargetToken),
		}
	}

	quotePolicy := retryPolicy{
		maxAttempts:    e.cfg.MaxRetryAttempts,
		baseDelay:      e.cfg.RetryBaseDelay,
		attemptTimeout: e.cfg.APICallTimeout,
	}
	var quote *types.Quote
	err := quotePolicy.do(ctx, func(ctx context.Context) error {
		q, err := e.quotes.GetQuote(ctx, order.SourceToken, order.TargetToken, order.Amount)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return "", &ExecutionError{Kind: ErrorKindQuoteUnavailable, Err: err}
	}

	phase = ErrorKindSubmissionFailed
	swap := types.SwapRequest{
		WalletAddress:  order.WalletAddress,
		Signature:      order.Signature,
		SourceToken:    order.SourceToken,
		TargetToken:    order.TargetToken,
		Amount:         order.Amount,
		Route:          quote.Route,
		IdempotencyKey: types.CycleKeyFor(order.OrderID, order.NextExecutionDate),
	}

	// Independent retry budget from the quote phase.
	submitPolicy := retryPolicy{
		maxAttempts:    e.cfg.MaxRetryAttempts,
		baseDelay:      e.cfg.RetryBaseDelay,
		attemptTimeout: e.cfg.OrderExecutionTimeout,
	}
	err = submitPolicy.do(ctx, func(ctx context.Context) error {
		hash, err := e.submitter.Submit(ctx, swap)
		if err != nil {
			return err
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return "", &ExecutionError{Kind: ErrorKindSubmissionFailed, Err: err}
	}

	return txHash, nil
}
