package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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
	"gorm.io/gorm/clause"
)

const entity = "product"

type ProductInput struct {
	StoreID     *uuid.UUID
	Name        string
	Category    *string
	UnitPerCase *int // nil means 1
	CostPrice   *decimal.Decimal
	ImageURL    *string
}

// Catalog owns product definitions. The counting engine only reads from it.
type Catalog struct {
	db    *gorm.DB
	audit *audit.Writer
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

type Option func(*Catalog)

func WithCache(c Cache, ttl time.Duration) Option {
	return func(cat *Catalog) {
		if c != nil {
			cat.cache = c
			cat.ttl = ttl
		}
	}
}

func New(db *gorm.DB, aw *audit.Writer, log *zap.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		db:    db,
		audit: aw,
		cache: noCache{},
		ttl:   5 * time.Minute,
		log:   log.Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cached products live under a per-product generation. Writers bump the
// generation after commit, so a fill that raced a write lands under a key
// no reader asks for again.
func versionKey(id uuid.UUID) string {
	return "catalog:product:" + id.String() + ":v"
}

func cacheKey(id uuid.UUID, version string) string {
	return "catalog:product:" + id.String() + ":" + version
}

func (c *Catalog) version(ctx context.Context, id uuid.UUID) string {
	if raw, ok := c.cache.Get(ctx, versionKey(id)); ok {
		return string(raw)
	}
	return "0"
}

func (c *Catalog) invalidate(ctx context.Context, id uuid.UUID) {
	old := c.version(ctx, id)
	c.cache.Incr(ctx, versionKey(id))
	c.cache.Delete(ctx, cacheKey(id, old))
}

func (c *Catalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	key := cacheKey(id, c.version(ctx, id))
	if raw, ok := c.cache.Get(ctx, key); ok {
		var p models.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
	}

	var p models.Product
	if err := c.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entity, id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	if raw, err := json.Marshal(p); err == nil {
		c.cache.Set(ctx, key, raw, c.ttl)
	}
	return &p, nil
}

// LookupProduct reads a product inside the caller's transaction, bypassing
// the cache. The row is share-locked so a concurrent update or delete waits
// for tx to finish.
func (c *Catalog) LookupProduct(tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entity, id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts returns the products visible to a store, newest first:
// the store's own products plus the global ones. A nil storeID lists all.
func (c *Catalog) ListProducts(ctx context.Context, storeID *uuid.UUID) ([]models.Product, error) {
	q := c.db.WithContext(ctx).Model(&models.Product{})
	if storeID != nil {
		q = q.Where("store_id = ? OR store_id IS NULL", *storeID)
	}
	var out []models.Product
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	p := models.Product{}
	if err := apply(&p, in); err != nil {
		return nil, err
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := stores.Ensure(tx, p.StoreID); err != nil {
			return err
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return c.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionCreate,
			Description: "product created: " + p.Name,
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("product created", zap.String("product_id", p.ID.String()), zap.Int("unit_per_case", p.UnitPerCase))
	return &p, nil
}

// UpdateProduct replaces the editable fields. Count lines already written
// keep the unit_per_case they captured.
func (c *Catalog) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (*models.Product, error) {
	var p models.Product
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get product: %w", err)
		}
		before := p
		if err := apply(&p, in); err != nil {
			return err
		}
		if err := stores.Ensure(tx, p.StoreID); err != nil {
			return err
		}
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return c.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: "product updated: " + p.Name,
			Before:      before,
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, id)
	return &p, nil
}

// DeleteProduct refuses to remove a product that any count line refers to,
// so historical counts stay resolvable.
func (c *Catalog) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get product: %w", err)
		}
		var n int64
		if err := tx.Model(&models.CountLine{}).Where("product_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("count product lines: %w", err)
		}
		if n > 0 {
			return apperr.Conflict(entity, id, "product has recorded counts")
		}
		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		return c.audit.Write(ctx, tx, audit.Entry{
			StoreID:     p.StoreID,
			EntityType:  entity,
			EntityID:    p.ID.String(),
			Action:      models.AuditActionDelete,
			Description: "product deleted: " + p.Name,
			Before:      p,
		})
	})
	if err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func apply(p *models.Product, in ProductInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Validation("name", "is required")
	}
	unit := 1
	if in.UnitPerCase != nil {
		unit = *in.UnitPerCase
	}
	if unit < 1 {
		return apperr.Validation("unit_per_case", "must be at least 1")
	}
	cost := decimal.NullDecimal{}
	if in.CostPrice != nil {
		if in.CostPrice.IsNegative() {
			return apperr.Validation("cost_price", "must not be negative")
		}
		cost = decimal.NewNullDecimal(*in.CostPrice)
	}

	p.StoreID = in.StoreID
	p.Name = name
	p.Category = httpx.OptionalString(in.Category)
	p.UnitPerCase = unit
	p.CostPrice = cost
	p.ImageURL = httpx.OptionalString(in.ImageURL)
	return nil
}
