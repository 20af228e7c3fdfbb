package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// runLeaseKey is the single lease row all engine instances compete for.
const runLeaseKey = "engine-run"

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(ctx context.Context, order *types.RecurringOrder) error {
	return d.db.WithContext(ctx).Create(order).Error
}

func (d *Database) GetOrder(ctx context.Context, orderID string) (*types.RecurringOrder, error) {
	var order types.RecurringOrder
	if err := d.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByIDAndWallet(ctx context.Context, orderID, walletAddress string) (*types.RecurringOrder, error) {
	var order types.RecurringOrder
	if err := d.db.WithContext(ctx).Where("order_id = ? AND wallet_address = ?", orderID, walletAddress).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetWalletOrders(ctx context.Context, walletAddress string) ([]types.RecurringOrder, error) {
	var orders []types.RecurringOrder
	err := d.db.WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// FetchDue returns active orders whose next execution date has passed,
// oldest due first, capped at limit. Orders beyond the cap stay due
// and are picked up by the next run.
func (d *Database) FetchDue(ctx context.Context, now time.Time, limit int) ([]types.RecurringOrder, error) {
	var orders []types.RecurringOrder
	err := d.db.WithContext(ctx).
		Where("active = ? AND next_execution_date <= ?", true, now).
		Order("next_execution_date ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (d *Database) CreateExecution(ctx context.Context, execution *types.Execution) error {
	return d.db.WithContext(ctx).Create(execution).Error
}

func (d *Database) GetOrderExecutions(ctx context.Context, orderID string) ([]types.Execution, error) {
	var executions []types.Execution
	err := d.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("executed_at DESC").
		Find(&executions).Error
	return executions, err
}

func (d *Database) GetWalletExecutions(ctx context.Context, walletAddress string) ([]types.Execution, error) {
	var executions []types.Execution
	err := d.db.WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		Order("executed_at DESC").
		Find(&executions).Error
	return executions, err
}

// AdvanceOrder moves an order to its next due time in a single UPDATE:
// the execution counter increments via a SQL expression so concurrent
// readers never see a lost update, and deactivation rides along when
// the new due time falls past the order's end date.
func (d *Database) AdvanceOrder(ctx context.Context, orderID string, nextDue time.Time, deactivate bool) error {
	updates := map[string]interface{}{
		"next_execution_date": nextDue,
		"execution_count":     gorm.Expr("execution_count + 1"),
		"updated_at":          time.Now(),
	}
	if deactivate {
		updates["active"] = false
	}

	result := d.db.WithContext(ctx).
		Model(&types.RecurringOrder{}).
		Where("order_id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Deactivate marks an order cancelled. Terminal: there is no
// reactivation path.
func (d *Database) Deactivate(ctx context.Context, orderID string) error {
	result := d.db.WithContext(ctx).
		Model(&types.RecurringOrder{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateOrderWithIdempotency creates the order and its idempotency
// record in one transaction.
func (d *Database) CreateOrderWithIdempotency(ctx context.Context, order *types.RecurringOrder, idempotencyKey string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		record := types.IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     order.OrderID,
			ResourceType:   "recurring_order",
			ExpiresAt:      time.Now().Add(24 * time.Hour),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves an idempotency record by key.
func (d *Database) GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// AcquireRunLease claims the engine run lease for holderID. Returns
// false when another live holder owns it. An expired lease is stolen;
// re-acquiring one's own lease renews it.
func (d *Database) AcquireRunLease(ctx context.Context, holderID string, ttl time.Duration) (bool, error) {
	acquired := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease types.RunLease
		err := tx.Where("lease_key = ?", runLeaseKey).First(&lease).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lease = types.RunLease{
				LeaseKey:  runLeaseKey,
				HolderID:  holderID,
				ExpiresAt: time.Now().Add(ttl),
			}
			if err := tx.Create(&lease).Error; err != nil {
				return err
			}
			acquired = true
			return nil
		}
		if err != nil {
			return err
		}

		if lease.HolderID != holderID && lease.ExpiresAt.After(time.Now()) {
			return nil
		}

		lease.HolderID = holderID
		lease.ExpiresAt = time.Now().Add(ttl)
		if err := tx.Save(&lease).Error; err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

// ReleaseRunLease drops the lease if holderID still owns it.
func (d *Database) ReleaseRunLease(ctx context.Context, holderID string) error {
	return d.db.WithContext(ctx).
		Where("lease_key = ? AND holder_id = ?", runLeaseKey, holderID).
		Delete(&types.RunLease{}).Error
}
