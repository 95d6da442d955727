package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/audit"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"
	"zaikokanri-backend/internal/stores"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entity = "purchase"

type Input struct {
	StoreID     *uuid.UUID
	Date        time.Time
	ImageURL    *string
	TotalAmount *decimal.Decimal
}

// Filter bounds are inclusive; zero values mean unbounded. IncludeGlobal
// widens a StoreID filter to purchases that belong to no store.
type Filter struct {
	From          *time.Time
	To            *time.Time
	StoreID       *uuid.UUID
	IncludeGlobal bool
}

// Ledger records purchases. Entries carry no lock state and can be edited or
// removed at any time.
type Ledger struct {
	db    *gorm.DB
	audit *audit.Writer
	log   *zap.Logger
}

func New(db *gorm.DB, aw *audit.Writer, log *zap.Logger) *Ledger {
	return &Ledger{db: db, audit: aw, log: log.Named("ledger")}
}

func (l *Ledger) GetPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var p models.Purchase
	if err := l.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entity, id)
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return &p, nil
}

// ListPurchases returns purchases by date descending, newest entry first on
// equal dates.
func (l *Ledger) ListPurchases(ctx context.Context, f Filter) ([]models.Purchase, error) {
	q := l.db.WithContext(ctx).Model(&models.Purchase{})
	switch {
	case f.StoreID != nil && f.IncludeGlobal:
		q = q.Where("store_id = ? OR store_id IS NULL", *f.StoreID)
	case f.StoreID != nil:
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date <= ?", *f.To)
	}
	var out []models.Purchase
	if err := q.Order("date DESC, created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

func (l *Ledger) CreatePurchase(ctx context.Context, in Input) (*models.Purchase, error) {
	var p models.Purchase
	if err := apply(&p, in); err != nil {
		return nil, err
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := stores.Ensure(tx, p.StoreID); err != nil {
			return err
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create purchase: %w", err)
		}
		return l.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionCreate,
			Description: "purchase recorded for " + httpx.FormatDate(p.Date),
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("purchase created", zap.String("purchase_id", p.ID.String()))
	return &p, nil
}

func (l *Ledger) UpdatePurchase(ctx context.Context, id uuid.UUID, in Input) (*models.Purchase, error) {
	var p models.Purchase
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get purchase: %w", err)
		}
		before := p
		if err := apply(&p, in); err != nil {
			return err
		}
		if err := stores.Ensure(tx, p.StoreID); err != nil {
			return err
		}
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update purchase: %w", err)
		}
		return l.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: "purchase updated",
			Before:      before,
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) DeletePurchase(ctx context.Context, id uuid.UUID) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Purchase
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get purchase: %w", err)
		}
		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete purchase: %w", err)
		}
		return l.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionDelete,
			Description: "purchase deleted",
			Before:      p,
		})
	})
}

func apply(p *models.Purchase, in Input) error {
	if in.Date.IsZero() {
		return apperr.Validation("date", "is required")
	}
	total := decimal.NullDecimal{}
	if in.TotalAmount != nil {
		if in.TotalAmount.IsNegative() {
			return apperr.Validation("total_amount", "must not be negative")
		}
		total = decimal.NewNullDecimal(*in.TotalAmount)
	}
	p.StoreID = in.StoreID
	p.Date = in.Date
	p.ImageURL = httpx.OptionalString(in.ImageURL)
	p.TotalAmount = total
	return nil
}
