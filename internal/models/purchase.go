package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase has no lifecycle lock: it can be edited or deleted at any time.
type Purchase struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	StoreID     *uuid.UUID          `gorm:"type:uuid;index"`
	Date        time.Time           `gorm:"type:date;index;not null"`
	ImageURL    *string             `gorm:"size:1024"` // opaque object storage URL
	TotalAmount decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	CreatedAt   time.Time           `gorm:"index"`
	UpdatedAt   time.Time
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
