package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionCompleted SessionStatus = "completed"
)

// InventorySession is one physical count. It is created as a draft and
// moves to completed exactly once; a completed session never changes again.
type InventorySession struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey"`
	StoreID     *uuid.UUID    `gorm:"type:uuid;index"`
	Date        time.Time     `gorm:"type:date;index;not null"`
	Status      SessionStatus `gorm:"size:20;not null;default:draft"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time

	Lines []CountLine `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (s *InventorySession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SessionDraft
	}
	return nil
}

func (s *InventorySession) IsCompleted() bool {
	return s.Status == SessionCompleted
}
