package models

import (
	"time"

	"github.com/google/uuid"
)

// CountLine is a single product's count within a session. At most one line
// exists per (session, product).
type CountLine struct {
	SessionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Product   Product   `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`

	CaseCount  int64 `gorm:"not null;default:0"`
	LooseCount int64 `gorm:"not null;default:0"`
	// Captured from the product on the first write of the line and never
	// refreshed afterwards.
	UnitPerCaseSnapshot int `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quantity is the line's total in loose units.
func (l CountLine) Quantity() int64 {
	return ComputeQuantity(l.CaseCount, l.LooseCount, l.UnitPerCaseSnapshot)
}

func ComputeQuantity(caseCount, looseCount int64, unitPerCase int) int64 {
	return caseCount*int64(unitPerCase) + looseCount
}
