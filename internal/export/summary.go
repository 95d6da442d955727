package export

import (
	"context"
	"fmt"

	"zaikokanri-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stats backs the reports page.
type Stats struct {
	Stores            int64           `json:"total_stores"`
	Products          int64           `json:"total_products"`
	Purchases         int64           `json:"total_purchases"`
	Sessions          int64           `json:"total_inventory_sessions"`
	CompletedSessions int64           `json:"completed_inventory_sessions"`
	PurchaseTotal     decimal.Decimal `json:"purchase_total"`
}

// Summary counts the rows visible to storeID; nil counts everything.
// Global products, purchases and sessions count toward every store.
func Summary(ctx context.Context, db *gorm.DB, storeID *uuid.UUID) (*Stats, error) {
	db = db.WithContext(ctx)
	scope := func(q *gorm.DB) *gorm.DB {
		if storeID == nil {
			return q
		}
		return q.Where("store_id = ? OR store_id IS NULL", *storeID)
	}

	var st Stats
	stores := db.Model(&models.Store{})
	if storeID != nil {
		stores = stores.Where("id = ?", *storeID)
	}
	if err := stores.Count(&st.Stores).Error; err != nil {
		return nil, fmt.Errorf("count stores: %w", err)
	}

	if err := scope(db.Model(&models.Product{})).Count(&st.Products).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	if err := scope(db.Model(&models.Purchase{})).Count(&st.Purchases).Error; err != nil {
		return nil, fmt.Errorf("count purchases: %w", err)
	}
	if err := scope(db.Model(&models.InventorySession{})).Count(&st.Sessions).Error; err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	err := scope(db.Model(&models.InventorySession{})).
		Where("status = ?", models.SessionCompleted).
		Count(&st.CompletedSessions).Error
	if err != nil {
		return nil, fmt.Errorf("count completed sessions: %w", err)
	}

	// summed here rather than with SUM() so sqlite's float arithmetic
	// never touches money
	var totals []decimal.NullDecimal
	err = scope(db.Model(&models.Purchase{})).
		Where("total_amount IS NOT NULL").
		Pluck("total_amount", &totals).Error
	if err != nil {
		return nil, fmt.Errorf("sum purchases: %w", err)
	}
	st.PurchaseTotal = decimal.Zero
	for _, t := range totals {
		if t.Valid {
			st.PurchaseTotal = st.PurchaseTotal.Add(t.Decimal)
		}
	}
	return &st, nil
}
