// Package counting runs physical inventory counts: the session lifecycle,
// per-product count capture and the case/loose quantity formula.
package counting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/audit"
	"zaikokanri-backend/internal/models"
	"zaikokanri-backend/internal/stores"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	entitySession = "inventory_session"
	entityLine    = "count_line"
)

// ProductCatalog is the read side of product management the engine needs.
// The engine never writes products. LookupProduct reads through tx, not a
// cache, so the snapshot taken on a first count matches the committed row.
type ProductCatalog interface {
	LookupProduct(tx *gorm.DB, id uuid.UUID) (*models.Product, error)
}

type CreateSessionInput struct {
	StoreID *uuid.UUID
	Date    time.Time
}

// ActorStoreID is the caller's store scope. When set, products of other
// stores are reported as not found even inside a global session.
type UpsertCountLineInput struct {
	SessionID    uuid.UUID
	ProductID    uuid.UUID
	CaseCount    int64
	LooseCount   int64
	ActorStoreID *uuid.UUID
}

// SessionFilter bounds are inclusive. IncludeGlobal widens a StoreID
// filter to sessions that belong to no store.
type SessionFilter struct {
	StoreID       *uuid.UUID
	IncludeGlobal bool
	Status        models.SessionStatus
	From          *time.Time
	To            *time.Time
}

// Totals summarises a session. Lines whose product has no cost price are
// left out of Valuation and listed in UnvaluedProductIDs.
type Totals struct {
	SessionID          uuid.UUID
	Status             models.SessionStatus
	LineCount          int
	TotalQuantity      int64
	Valuation          decimal.Decimal
	ValuedLines        int
	UnvaluedProductIDs []uuid.UUID
}

type Engine struct {
	db      *gorm.DB
	catalog ProductCatalog
	audit   *audit.Writer
	log     *zap.Logger
}

func NewEngine(db *gorm.DB, catalog ProductCatalog, aw *audit.Writer, log *zap.Logger) *Engine {
	return &Engine{db: db, catalog: catalog, audit: aw, log: log.Named("counting")}
}

func (e *Engine) CreateSession(ctx context.Context, in CreateSessionInput) (*models.InventorySession, error) {
	if in.Date.IsZero() {
		return nil, apperr.Validation("date", "is required")
	}

	s := models.InventorySession{StoreID: in.StoreID, Date: in.Date, Status: models.SessionDraft}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := stores.Ensure(tx, s.StoreID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&s).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return e.audit.Write(ctx, tx, audit.Entry{
			StoreID:     s.StoreID,
			EntityType:  entitySession,
			EntityID:    s.ID.String(),
			Action:      models.AuditActionCreate,
			Description: "inventory session opened for " + s.Date.Format("2006-01-02"),
			After:       s,
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("session created", zap.String("session_id", s.ID.String()))
	return &s, nil
}

// GetSession loads a session with its lines ordered by product name.
func (e *Engine) GetSession(ctx context.Context, id uuid.UUID) (*models.InventorySession, error) {
	var s models.InventorySession
	err := e.db.WithContext(ctx).Preload("Lines.Product").First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entitySession, id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sortLines(s.Lines)
	return &s, nil
}

// ListSessions returns sessions by date descending; sessions on the same
// date come newest first.
func (e *Engine) ListSessions(ctx context.Context, f SessionFilter) ([]models.InventorySession, error) {
	q := e.db.WithContext(ctx).Model(&models.InventorySession{})
	switch {
	case f.StoreID != nil && f.IncludeGlobal:
		q = q.Where("store_id = ? OR store_id IS NULL", *f.StoreID)
	case f.StoreID != nil:
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date <= ?", *f.To)
	}
	var out []models.InventorySession
	if err := q.Order("date DESC, created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// UpsertCountLine records the counts for one product in a draft session.
// The first write captures the product's unit_per_case; later writes only
// replace the two counts. The session status is checked under a row lock in
// the same transaction as the write, so a count never lands after completion.
func (e *Engine) UpsertCountLine(ctx context.Context, in UpsertCountLineInput) (*models.CountLine, error) {
	if in.CaseCount < 0 {
		return nil, apperr.Validation("case_count", "must not be negative")
	}
	if in.LooseCount < 0 {
		return nil, apperr.Validation("loose_count", "must not be negative")
	}

	var (
		line    models.CountLine
		product *models.Product
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, in.SessionID)
		if err != nil {
			return err
		}
		if s.IsCompleted() {
			return apperr.Conflict(entitySession, s.ID, "session is completed")
		}
		product, err = e.catalog.LookupProduct(tx, in.ProductID)
		if err != nil {
			return err
		}
		if in.ActorStoreID != nil && product.StoreID != nil && *in.ActorStoreID != *product.StoreID {
			return apperr.NotFound("product", in.ProductID)
		}
		if s.StoreID != nil && product.StoreID != nil && *s.StoreID != *product.StoreID {
			return apperr.Validation("product_id", "product belongs to a different store")
		}

		err = tx.Where("session_id = ? AND product_id = ?", in.SessionID, in.ProductID).Take(&line).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if product.UnitPerCase < 1 {
				return apperr.Validation("unit_per_case", "product unit_per_case must be at least 1")
			}
			line = models.CountLine{
				SessionID:           in.SessionID,
				ProductID:           in.ProductID,
				CaseCount:           in.CaseCount,
				LooseCount:          in.LooseCount,
				UnitPerCaseSnapshot: product.UnitPerCase,
			}
			if err := checkOverflow(line); err != nil {
				return err
			}
			if err := tx.Omit(clause.Associations).Create(&line).Error; err != nil {
				return fmt.Errorf("create count line: %w", err)
			}
			return e.audit.Write(ctx, tx, lineEntry(s, line, models.AuditActionCreate, nil))

		case err != nil:
			return fmt.Errorf("get count line: %w", err)
		}

		before := line
		line.CaseCount = in.CaseCount
		line.LooseCount = in.LooseCount
		if err := checkOverflow(line); err != nil {
			return err
		}
		err = tx.Model(&line).Omit(clause.Associations).Updates(map[string]any{
			"case_count":  line.CaseCount,
			"loose_count": line.LooseCount,
		}).Error
		if err != nil {
			return fmt.Errorf("update count line: %w", err)
		}
		return e.audit.Write(ctx, tx, lineEntry(s, line, models.AuditActionUpdate, &before))
	})
	if err != nil {
		return nil, err
	}

	line.Product = *product
	e.log.Debug("count recorded",
		zap.String("session_id", in.SessionID.String()),
		zap.String("product_id", in.ProductID.String()),
		zap.Int64("quantity", line.Quantity()),
	)
	return &line, nil
}

// DeleteCountLine removes one product's count from a draft session.
func (e *Engine) DeleteCountLine(ctx context.Context, sessionID, productID uuid.UUID) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if s.IsCompleted() {
			return apperr.Conflict(entitySession, s.ID, "session is completed")
		}

		var line models.CountLine
		err = tx.Where("session_id = ? AND product_id = ?", sessionID, productID).Take(&line).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entityLine, productID)
			}
			return fmt.Errorf("get count line: %w", err)
		}
		if err := tx.Where("session_id = ? AND product_id = ?", sessionID, productID).Delete(&models.CountLine{}).Error; err != nil {
			return fmt.Errorf("delete count line: %w", err)
		}
		return e.audit.Write(ctx, tx, audit.Entry{
			StoreID:     s.StoreID,
			EntityType:  entityLine,
			EntityID:    lineID(line),
			Action:      models.AuditActionDelete,
			Description: "count removed",
			Before:      line,
		})
	})
}

// CompleteSession locks a draft session. Completing an already completed
// session returns it unchanged.
func (e *Engine) CompleteSession(ctx context.Context, id uuid.UUID) (*models.InventorySession, error) {
	var s *models.InventorySession
	changed := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		s, err = lockSession(tx, id)
		if err != nil {
			return err
		}
		if s.IsCompleted() {
			return nil
		}

		before := *s
		now := tx.NowFunc()
		s.Status = models.SessionCompleted
		s.CompletedAt = &now
		err = tx.Model(s).Omit(clause.Associations).Updates(map[string]any{
			"status":       s.Status,
			"completed_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		changed = true
		return e.audit.Write(ctx, tx, audit.Entry{
			StoreID:     s.StoreID,
			EntityType:  entitySession,
			EntityID:    s.ID.String(),
			Action:      models.AuditActionComplete,
			Description: "inventory session completed",
			Before:      before,
			After:       s,
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		e.log.Info("session completed", zap.String("session_id", id.String()))
	}
	return s, nil
}

// DeleteSession removes a draft session together with its lines.
func (e *Engine) DeleteSession(ctx context.Context, id uuid.UUID) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, id)
		if err != nil {
			return err
		}
		if s.IsCompleted() {
			return apperr.Conflict(entitySession, s.ID, "completed sessions cannot be deleted")
		}
		if err := tx.Where("session_id = ?", id).Delete(&models.CountLine{}).Error; err != nil {
			return fmt.Errorf("delete count lines: %w", err)
		}
		if err := tx.Delete(&models.InventorySession{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return e.audit.Write(ctx, tx, audit.Entry{
			StoreID:     s.StoreID,
			EntityType:  entitySession,
			EntityID:    s.ID.String(),
			Action:      models.AuditActionDelete,
			Description: "inventory session deleted",
			Before:      s,
		})
	})
	if err != nil {
		return err
	}
	e.log.Info("session deleted", zap.String("session_id", id.String()))
	return nil
}

// GetSessionTotals sums the line quantities and values them at the
// products' current cost price.
func (e *Engine) GetSessionTotals(ctx context.Context, id uuid.UUID) (*Totals, error) {
	s, err := e.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	t := &Totals{
		SessionID:          s.ID,
		Status:             s.Status,
		LineCount:          len(s.Lines),
		Valuation:          decimal.Zero,
		UnvaluedProductIDs: []uuid.UUID{},
	}
	for _, l := range s.Lines {
		q := l.Quantity()
		if t.TotalQuantity > math.MaxInt64-q {
			return nil, fmt.Errorf("session %s: total quantity overflows", s.ID)
		}
		t.TotalQuantity += q

		if !l.Product.CostPrice.Valid {
			t.UnvaluedProductIDs = append(t.UnvaluedProductIDs, l.ProductID)
			continue
		}
		t.Valuation = t.Valuation.Add(decimal.NewFromInt(q).Mul(l.Product.CostPrice.Decimal))
		t.ValuedLines++
	}
	return t, nil
}

func lockSession(tx *gorm.DB, id uuid.UUID) (*models.InventorySession, error) {
	var s models.InventorySession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entitySession, id)
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return &s, nil
}

func checkOverflow(l models.CountLine) error {
	u := int64(l.UnitPerCaseSnapshot)
	if l.CaseCount > (math.MaxInt64-l.LooseCount)/u {
		return apperr.Validation("case_count", "quantity is out of range")
	}
	return nil
}

func lineEntry(s *models.InventorySession, l models.CountLine, action models.AuditAction, before *models.CountLine) audit.Entry {
	e := audit.Entry{
		StoreID:     s.StoreID,
		EntityType:  entityLine,
		EntityID:    lineID(l),
		Action:      action,
		Description: fmt.Sprintf("counted %d (cases %d x %d + loose %d)", l.Quantity(), l.CaseCount, l.UnitPerCaseSnapshot, l.LooseCount),
		After:       l,
	}
	if before != nil {
		e.Before = before
	}
	return e
}

func lineID(l models.CountLine) string {
	return l.SessionID.String() + "/" + l.ProductID.String()
}

func sortLines(lines []models.CountLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Product.Name != lines[j].Product.Name {
			return lines[i].Product.Name < lines[j].Product.Name
		}
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
}
