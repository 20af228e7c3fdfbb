package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest is the body of POST /api/v1/orders. Frequency and
// token symbols are checked by custom binding validators registered in
// the orders package.
type CreateOrderRequest struct {
	Side        string          `json:"side" binding:"required,oneof=buy sell"`
	SourceToken string          `json:"source_token" binding:"required,token"`
	TargetToken string          `json:"target_token" binding:"required,token,nefield=SourceToken"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Frequency   string          `json:"frequency" binding:"required,frequency"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Signature   string          `json:"signature" binding:"required"`
}

// CancelOrderResponse reports the outcome of a cancellation. Cancelling
// an already-cancelled order is idempotent, so AlreadyCancelled lets
// the caller tell the two apart.
type CancelOrderResponse struct {
	OrderID          string `json:"order_id"`
	Active           bool   `json:"active"`
	AlreadyCancelled bool   `json:"already_cancelled"`
}

// RunSummaryResponse is returned by the internal run-trigger endpoint.
type RunSummaryResponse struct {
	RunID       string          `json:"run_id"`
	Processed   int             `json:"processed"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	StoreErrors int             `json:"store_errors"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	ElapsedMs   int64           `json:"elapsed_ms"`
}
