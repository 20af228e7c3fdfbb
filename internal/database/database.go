package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
)

// NewDatabase opens the GORM connection and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.RecurringOrder{},
		&types.Execution{},
		&types.ActivityLog{},
		&types.RunLease{},
		&types.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
