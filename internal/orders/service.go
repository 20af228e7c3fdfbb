package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/RoiLaboratories/Tower-Exchange/internal/activity"
	"github.com/RoiLaboratories/Tower-Exchange/internal/engine"
	"github.com/RoiLaboratories/Tower-Exchange/internal/tokens"
	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrSameToken        = errors.New("source and target token must differ")
	ErrUnsupportedToken = errors.New("unsupported token")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEndDateInPast    = errors.New("end date must be in the future")
)

// Service handles recurring-order management. The engine mutates order
// schedules; this service owns creation, cancellation and reads.
type Service struct {
	db       *Database
	activity *activity.Service
	registry *tokens.Registry
}

// NewService creates a new order service with the given database
// connection, activity logger and supported-token registry.
func NewService(gormDB *gorm.DB, activitySvc *activity.Service, registry *tokens.Registry) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		activity: activitySvc,
		registry: registry,
	}
}

// Database exposes the underlying store, which also serves as the
// engine's order store.
func (s *Service) Database() *Database {
	return s.db
}

// CreateOrder creates a new recurring order with idempotency support.
// A request replayed with the same idempotency key returns the
// original order instead of creating a second one.
func (s *Service) CreateOrder(ctx context.Context, walletAddress string, req types.CreateOrderRequest, idempotencyKey string) (*types.RecurringOrder, error) {
	record, err := s.db.GetIdempotencyRecord(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(ctx, record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrOrderNotFound
		}
		return existing, nil
	}

	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &types.RecurringOrder{
		OrderID:           uuid.New().String(),
		WalletAddress:     walletAddress,
		Side:              req.Side,
		SourceToken:       req.SourceToken,
		TargetToken:       req.TargetToken,
		Amount:            s.registry.Normalize(req.SourceToken, req.Amount),
		Frequency:         req.Frequency,
		StartDate:         now,
		EndDate:           req.EndDate,
		NextExecutionDate: engine.NextExecutionTime(req.Frequency, now),
		Active:            true,
		Signature:         req.Signature,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.db.CreateOrderWithIdempotency(ctx, order, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// Advisory only: a logging failure never unwinds the creation.
	if err := s.activity.LogActivity(ctx, walletAddress, types.ActivityOrderCreated, order.SourceToken, order.TargetToken, order.Amount, "active"); err != nil {
		log.Warn().Err(err).
			Str("order_id", order.OrderID).
			Str("wallet_address", walletAddress).
			Msg("failed to log order creation activity")
	}

	return order, nil
}

// CancelOrder deactivates an order owned by the wallet. Cancelling an
// already-cancelled order is idempotent: no error, no duplicate
// activity record.
func (s *Service) CancelOrder(ctx context.Context, walletAddress, orderID string) (*types.CancelOrderResponse, error) {
	order, err := s.db.GetOrderByIDAndWallet(ctx, orderID, walletAddress)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if !order.Active {
		return &types.CancelOrderResponse{
			OrderID:          orderID,
			Active:           false,
			AlreadyCancelled: true,
		}, nil
	}

	if err := s.db.Deactivate(ctx, orderID); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	// Cancellation is the durable effect; logging is advisory.
	if err := s.activity.LogActivity(ctx, walletAddress, types.ActivityOrderCancelled, order.SourceToken, order.TargetToken, order.Amount, "cancelled"); err != nil {
		log.Warn().Err(err).
			Str("order_id", orderID).
			Str("wallet_address", walletAddress).
			Msg("failed to log order cancellation activity")
	}

	return &types.CancelOrderResponse{
		OrderID: orderID,
		Active:  false,
	}, nil
}

// GetOrder retrieves an order scoped to the owning wallet.
func (s *Service) GetOrder(ctx context.Context, walletAddress, orderID string) (*types.RecurringOrder, error) {
	order, err := s.db.GetOrderByIDAndWallet(ctx, orderID, walletAddress)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns all of a wallet's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, walletAddress string) ([]types.RecurringOrder, error) {
	return s.db.GetWalletOrders(ctx, walletAddress)
}

// ListExecutions returns the execution history for one order, scoped
// to the owning wallet.
func (s *Service) ListExecutions(ctx context.Context, walletAddress, orderID string) ([]types.Execution, error) {
	order, err := s.db.GetOrderByIDAndWallet(ctx, orderID, walletAddress)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return s.db.GetOrderExecutions(ctx, orderID)
}

func (s *Service) validateRequest(req types.CreateOrderRequest) error {
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if req.SourceToken == req.TargetToken {
		return ErrSameToken
	}
	if !s.registry.Supports(req.SourceToken) {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, req.SourceToken)
	}
	if !s.registry.Supports(req.TargetToken) {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, req.TargetToken)
	}
	if !engine.ValidFrequency(req.Frequency) {
		return fmt.Errorf("%w: %s", ErrInvalidFrequency, req.Frequency)
	}
	if req.EndDate != nil && req.EndDate.Before(time.Now()) {
		return ErrEndDateInPast
	}
	return nil
}
