package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
	AuditActionComplete AuditAction = "complete"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	StoreID *uuid.UUID `gorm:"type:uuid;index" json:"store_id"`
	Actor   string     `gorm:"size:100" json:"actor"`

	// "inventory_session", "count_line", "product", "purchase", "store"
	EntityType string      `gorm:"size:50;index" json:"entity_type"`
	EntityID   string      `gorm:"size:80;index" json:"entity_id"`
	Action     AuditAction `gorm:"size:20" json:"action"`

	Description string `gorm:"size:255" json:"description"`

	BeforeData string `gorm:"type:text" json:"before_data"`
	AfterData  string `gorm:"type:text" json:"after_data"`
}
