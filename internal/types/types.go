package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Frequency tokens accepted on recurring orders
const (
	FrequencyHourly   = "hourly"
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiWeekly = "bi-weekly"
	FrequencyMonthly  = "monthly"
)

// Execution statuses
const (
	ExecutionStatusPending    = "pending"
	ExecutionStatusSuccessful = "successful"
	ExecutionStatusFailed     = "failed"
)

// Activity types
const (
	ActivityOrderCreated   = "order_created"
	ActivityOrderCancelled = "order_cancelled"
	ActivityOrderExecuted  = "order_executed"
)

// RecurringOrder is a standing instruction to repeatedly swap Amount of
// SourceToken into TargetToken for WalletAddress on a fixed cadence.
type RecurringOrder struct {
	gorm.Model        `json:"-"`
	OrderID           string          `gorm:"uniqueIndex" json:"order_id"`
	WalletAddress     string          `gorm:"index" json:"wallet_address"`
	Side              string          `json:"side"` // buy or sell
	SourceToken       string          `json:"source_token"`
	TargetToken       string          `json:"target_token"`
	Amount            decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	Frequency         string          `json:"frequency"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	NextExecutionDate time.Time       `gorm:"index" json:"next_execution_date"`
	Active            bool            `json:"active"`
	ExecutionCount    int             `json:"execution_count"`
	Signature         string          `json:"-"` // wallet authorization, opaque to the engine
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Execution is an immutable record of one attempt to fulfil one due
// cycle of a recurring order.
type Execution struct {
	gorm.Model    `json:"-"`
	ExecutionID   string          `gorm:"uniqueIndex" json:"execution_id"`
	CycleKey      string          `gorm:"uniqueIndex" json:"-"`
	OrderID       string          `gorm:"index" json:"order_id"`
	WalletAddress string          `gorm:"index" json:"wallet_address"`
	Amount        decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	SourceToken   string          `json:"source_token"`
	TargetToken   string          `json:"target_token"`
	Status        string          `json:"status"` // pending, successful, failed
	TxHash        string          `json:"tx_hash,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ExecutedAt    time.Time       `json:"executed_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CycleKeyFor derives the deterministic per-due-cycle key used both as
// the execution uniqueness guard and as the submitter idempotency key.
func CycleKeyFor(orderID string, dueTime time.Time) string {
	return fmt.Sprintf("%s:%d", orderID, dueTime.UTC().Unix())
}

// ActivityLog is a human-facing audit record of an order event.
type ActivityLog struct {
	gorm.Model    `json:"-"`
	ActivityID    string          `gorm:"uniqueIndex" json:"activity_id"`
	WalletAddress string          `gorm:"index" json:"wallet_address"`
	ActivityType  string          `json:"activity_type"`
	SourceToken   string          `json:"source_token"`
	TargetToken   string          `json:"target_token"`
	Amount        decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RunLease guards against two engine instances running overlapping
// batches. A single row keyed by LeaseKey is claimed before a run and
// released after; an expired lease may be stolen.
type RunLease struct {
	gorm.Model
	LeaseKey  string    `gorm:"uniqueIndex"`
	HolderID  string
	ExpiresAt time.Time
}

// IdempotencyRecord maps a client-supplied idempotency key to the
// resource it created, so duplicate create requests return the
// original resource instead of a second one.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Quote is a price/route returned by the quote provider for a token
// pair and amount.
type Quote struct {
	Route          string          `json:"route"`
	Price          decimal.Decimal `json:"price"`
	ExpectedOutput decimal.Decimal `json:"expected_output"`
}

// SwapRequest is the payload handed to the transaction submitter for
// one due cycle. IdempotencyKey is the cycle key, so a retried
// submission after a timeout cannot double-spend.
type SwapRequest struct {
	WalletAddress  string          `json:"wallet_address"`
	Signature      string          `json:"signature"`
	SourceToken    string          `json:"source_token"`
	TargetToken    string          `json:"target_token"`
	Amount         decimal.Decimal `json:"amount"`
	Route          string          `json:"route"`
	IdempotencyKey string          `json:"-"`
}
