package activity

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
	"github.com/RoiLaboratories/Tower-Exchange/pkg/response"
)

// Service records and serves the human-facing audit trail of order
// events. Logging is advisory everywhere it is called: callers treat
// a logging failure as a warning, never as an operation failure.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// LogActivity appends one audit record.
func (s *Service) LogActivity(ctx context.Context, walletAddress, activityType, sourceToken, targetToken string, amount decimal.Decimal, status string) error {
	record := &types.ActivityLog{
		ActivityID:    uuid.New().String(),
		WalletAddress: walletAddress,
		ActivityType:  activityType,
		SourceToken:   sourceToken,
		TargetToken:   targetToken,
		Amount:        amount,
		Status:        status,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	return s.db.CreateActivity(ctx, record)
}

// ListActivity returns a wallet's audit records, newest first.
func (s *Service) ListActivity(ctx context.Context, walletAddress string, limit int) ([]types.ActivityLog, error) {
	return s.db.GetWalletActivity(ctx, walletAddress, limit)
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateActivity(ctx context.Context, record *types.ActivityLog) error {
	return d.db.WithContext(ctx).Create(record).Error
}

func (d *Database) GetWalletActivity(ctx context.Context, walletAddress string, limit int) ([]types.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []types.ActivityLog
	err := d.db.WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// GinHandlers contains HTTP handlers for the activity feed
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListActivityHandler handles GET requests for a wallet's activity feed
func (h *GinHandlers) ListActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("walletAddress")
		if wallet == "" {
			response.Unauthorized(c, "Missing wallet address")
			return
		}

		records, err := h.service.ListActivity(c.Request.Context(), wallet, 0)
		response.Handle(c, records, err)
	}
}
