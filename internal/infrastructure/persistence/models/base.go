package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for uuid-keyed models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// AllModels returns every model managed by the schema, for AutoMigrate in tests and local runs
func AllModels() []any {
	return []any{
		&OrderModel{},
		&RefundDetailModel{},
		&ReturnIndexModel{},
		&ReconciliationModel{},
	}
}
