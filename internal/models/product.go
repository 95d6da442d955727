package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	StoreID     *uuid.UUID          `gorm:"type:uuid;index"` // nil: shared by every store
	Name        string              `gorm:"size:200;not null"`
	Category    *string             `gorm:"size:100"`
	UnitPerCase int                 `gorm:"not null;default:1"`
	CostPrice   decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	ImageURL    *string             `gorm:"size:1024"`
	CreatedAt   time.Time           `gorm:"index"`
	UpdatedAt   time.Time
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
