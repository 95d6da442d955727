package export

import (
	"bytes"
	"time"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/counting"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/ledger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

type Handlers struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	engine  *counting.Engine
	quoting Quoting
	log     *zap.Logger
}

func NewHandlers(db *gorm.DB, l *ledger.Ledger, e *counting.Engine, q Quoting, log *zap.Logger) *Handlers {
	return &Handlers{db: db, ledger: l, engine: e, quoting: q, log: log.Named("export")}
}

// GET /api/exports/purchases.{csv,xlsx}?from=&to=&store_id=
func (h *Handlers) Purchases(format Format) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := ledger.FilterFromQuery(c)
		if err != nil {
			return err
		}
		list, err := h.ledger.ListPurchases(c.UserContext(), f)
		if err != nil {
			return err
		}
		return h.send(c, format, "purchases", PurchaseTable(list))
	}
}

// GET /api/exports/inventory-sessions.{csv,xlsx}?store_id=&status=&from=&to=
func (h *Handlers) Sessions(format Format) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := counting.FilterFromQuery(c)
		if err != nil {
			return err
		}
		list, err := h.engine.ListSessions(c.UserContext(), f)
		if err != nil {
			return err
		}
		return h.send(c, format, "inventory", SessionTable(list))
	}
}

// GET /api/exports/inventory-sessions/:id/lines.csv
func (h *Handlers) SessionLines() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		s, err := h.engine.GetSession(c.UserContext(), id)
		if err != nil {
			return err
		}
		if !auth.ScopeFrom(c).Allows(s.StoreID) {
			return apperr.NotFound("inventory_session", id)
		}
		return h.send(c, FormatCSV, "inventory_lines_"+s.ID.String(), CountLineTable(s))
	}
}

// GET /api/reports/summary
func (h *Handlers) Summary() fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := Summary(c.UserContext(), h.db, auth.ScopeFrom(c).StoreID)
		if err != nil {
			return err
		}
		return c.JSON(st)
	}
}

func (h *Handlers) send(c *fiber.Ctx, format Format, name string, t Table) error {
	var buf bytes.Buffer
	filename := name + "_" + time.Now().UTC().Format(httpx.DateLayout) + "." + string(format)
	c.Attachment(filename)

	switch format {
	case FormatXLSX:
		if err := WriteXLSX(&buf, name, t); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, xlsxContentType)
	default:
		if err := WriteCSV(&buf, t, h.quoting); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	}

	h.log.Debug("export", zap.String("file", filename), zap.Int("rows", len(t.Rows)))
	return c.Send(buf.Bytes())
}
