package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Entry struct {
	StoreID     *uuid.UUID
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

type Writer struct {
	db *gorm.DB
}

func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

// Write persists e through tx so the entry commits or rolls back together
// with the change it describes. A nil tx writes through the writer's own handle.
func (w *Writer) Write(ctx context.Context, tx *gorm.DB, e Entry) error {
	if tx == nil {
		tx = w.db
	}

	row := models.AuditLog{
		StoreID:     e.StoreID,
		Actor:       auth.ActorFrom(ctx),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: e.Description,
		BeforeData:  marshal(e.Before),
		AfterData:   marshal(e.After),
	}

	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

type Filter struct {
	StoreID    *uuid.UUID
	EntityType string
	EntityID   string
	Limit      int
}

// List returns entries newest first. A store filter also keeps entries that
// are not tied to any store.
func (w *Writer) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	q := w.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.StoreID != nil {
		q = q.Where("store_id = ? OR store_id IS NULL", *f.StoreID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// jsonb-style payloads: absent values are stored as the JSON literal null.
func marshal(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
