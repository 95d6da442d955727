package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/audit"
	"zaikokanri-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const entity = "store"

type Input struct {
	Name    string
	Address *string
}

type Service struct {
	db    *gorm.DB
	audit *audit.Writer
	log   *zap.Logger
}

func NewService(db *gorm.DB, aw *audit.Writer, log *zap.Logger) *Service {
	return &Service{db: db, audit: aw, log: log.Named("stores")}
}

// Ensure checks that the referenced store exists. A nil id means "no store"
// and is always valid.
func Ensure(tx *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Store{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return fmt.Errorf("look up store: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, *id)
	}
	return nil
}

// List returns stores ordered by name. A scoped caller only sees its own.
func (s *Service) List(ctx context.Context, scope *uuid.UUID) ([]models.Store, error) {
	q := s.db.WithContext(ctx).Model(&models.Store{})
	if scope != nil {
		q = q.Where("id = ?", *scope)
	}
	var out []models.Store
	if err := q.Order("name ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var st models.Store
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entity, id)
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &st, nil
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Store, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	st := models.Store{Name: in.Name, Address: in.Address}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&st).Error; err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		return s.audit.Write(ctx, tx, audit.Entry{
			StoreID:     &st.ID,
			EntityType:  entity,
			EntityID:    st.ID.String(),
			Action:      models.AuditActionCreate,
			Description: "store created: " + st.Name,
			After:       st,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("store created", zap.String("store_id", st.ID.String()))
	return &st, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*models.Store, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	var st models.Store
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&st, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get store: %w", err)
		}
		before := st
		st.Name = in.Name
		st.Address = in.Address
		if err := tx.Save(&st).Error; err != nil {
			return fmt.Errorf("update store: %w", err)
		}
		return s.audit.Write(ctx, tx, audit.Entry{
			StoreID:     &st.ID,
			EntityType:  entity,
			EntityID:    st.ID.String(),
			Action:      models.AuditActionUpdate,
			Description: "store updated: " + st.Name,
			Before:      before,
			After:       st,
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Delete removes a store that nothing references any more.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st models.Store
		if err := tx.First(&st, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entity, id)
			}
			return fmt.Errorf("get store: %w", err)
		}

		for _, ref := range []any{&models.Product{}, &models.InventorySession{}, &models.Purchase{}} {
			var n int64
			if err := tx.Model(ref).Where("store_id = ?", id).Count(&n).Error; err != nil {
				return fmt.Errorf("count store references: %w", err)
			}
			if n > 0 {
				return apperr.Conflict(entity, id, "store is still referenced by products, sessions or purchases")
			}
		}

		if err := tx.Delete(&st).Error; err != nil {
			return fmt.Errorf("delete store: %w", err)
		}
		return s.audit.Write(ctx, tx, audit.Entry{
			StoreID:     &st.ID,
			EntityType:  entity,
			EntityID:    st.ID.String(),
			Action:      models.AuditActionDelete,
			Description: "store deleted: " + st.Name,
			Before:      st,
		})
	})
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, apperr.Validation("name", "is required")
	}
	if in.Address != nil {
		a := strings.TrimSpace(*in.Address)
		if a == "" {
			in.Address = nil
		} else {
			in.Address = &a
		}
	}
	return in, nil
}
