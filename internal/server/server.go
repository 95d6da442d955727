package server

import (
	"errors"
	"strings"
	"time"

	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/audit"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/catalog"
	"zaikokanri-backend/internal/config"
	"zaikokanri-backend/internal/counting"
	"zaikokanri-backend/internal/export"
	"zaikokanri-backend/internal/ledger"
	"zaikokanri-backend/internal/stores"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New wires every component onto one fiber app. cache may be nil.
func New(cfg *config.Config, db *gorm.DB, cache catalog.Cache, log *zap.Logger) *fiber.App {
	aw := audit.NewWriter(db)
	storeSvc := stores.NewService(db, aw, log)
	cat := catalog.New(db, aw, log, catalog.WithCache(cache, cfg.CatalogCacheTTL))
	led := ledger.New(db, aw, log)
	engine := counting.NewEngine(db, cat, aw, log)
	exports := export.NewHandlers(db, led, engine, export.Quoting(cfg.CSVQuoting), log)

	app := fiber.New(fiber.Config{
		AppName:      "zaikokanri-backend",
		ErrorHandler: errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(accessLog(log))

	origins := strings.Split(cfg.CORSOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Use(auth.JWTMiddleware(cfg.JWTSecret))

	// Stores
	api.Get("/stores", stores.ListHandler(storeSvc))
	api.Post("/stores", stores.CreateHandler(storeSvc))
	api.Get("/stores/:id", stores.GetHandler(storeSvc))
	api.Put("/stores/:id", stores.UpdateHandler(storeSvc))
	api.Delete("/stores/:id", stores.DeleteHandler(storeSvc))

	// Products
	api.Get("/products", catalog.ListHandler(cat))
	api.Post("/products", catalog.CreateHandler(cat))
	api.Get("/products/:id", catalog.GetHandler(cat))
	api.Put("/products/:id", catalog.UpdateHandler(cat))
	api.Delete("/products/:id", catalog.DeleteHandler(cat))

	// Purchases
	api.Get("/purchases", ledger.ListHandler(led))
	api.Post("/purchases", ledger.CreateHandler(led))
	api.Get("/purchases/:id", ledger.GetHandler(led))
	api.Put("/purchases/:id", ledger.UpdateHandler(led))
	api.Delete("/purchases/:id", ledger.DeleteHandler(led))

	// Inventory counts
	api.Get("/inventory-sessions", counting.ListHandler(engine))
	api.Post("/inventory-sessions", counting.CreateHandler(engine))
	api.Get("/inventory-sessions/:id", counting.GetHandler(engine))
	api.Delete("/inventory-sessions/:id", counting.DeleteHandler(engine))
	api.Put("/inventory-sessions/:id/lines/:productId", counting.UpsertLineHandler(engine))
	api.Delete("/inventory-sessions/:id/lines/:productId", counting.DeleteLineHandler(engine))
	api.Post("/inventory-sessions/:id/complete", counting.CompleteHandler(engine))
	api.Get("/inventory-sessions/:id/totals", counting.TotalsHandler(engine))

	// Exports & reports
	api.Get("/exports/purchases.csv", exports.Purchases(export.FormatCSV))
	api.Get("/exports/purchases.xlsx", exports.Purchases(export.FormatXLSX))
	api.Get("/exports/inventory-sessions.csv", exports.Sessions(export.FormatCSV))
	api.Get("/exports/inventory-sessions.xlsx", exports.Sessions(export.FormatXLSX))
	api.Get("/exports/inventory-sessions/:id/lines.csv", exports.SessionLines())
	api.Get("/reports/summary", exports.Summary())

	// Audit
	api.Get("/audit-logs", audit.ListHandler(aw))

	return app
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
	Field  string `json:"field,omitempty"`
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			verr *apperr.ValidationError
			nerr *apperr.NotFoundError
			cerr *apperr.ConflictError
			ferr *fiber.Error
		)
		switch {
		case errors.As(err, &verr):
			return c.Status(fiber.StatusBadRequest).JSON(errorBody{Error: verr.Error(), Code: "validation", Field: verr.Field})
		case errors.As(err, &nerr):
			return c.Status(fiber.StatusNotFound).JSON(errorBody{Error: nerr.Error(), Code: "not_found", Entity: nerr.Entity, ID: nerr.ID})
		case errors.As(err, &cerr):
			return c.Status(fiber.StatusConflict).JSON(errorBody{Error: cerr.Error(), Code: "conflict", Entity: cerr.Entity, ID: cerr.ID})
		case errors.As(err, &ferr):
			return c.Status(ferr.Code).JSON(errorBody{Error: ferr.Message, Code: codeFor(ferr.Code)})
		}

		log.Error("unexpected error",
			zap.Error(err),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{Error: "internal server error", Code: "internal"})
	}
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status >= 500 {
		return "internal"
	}
	return "error"
}

func accessLog(log *zap.Logger) fiber.Handler {
	log = log.Named("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Info("http request",
			zap.Any("request_id", c.Locals(requestid.ConfigDefault.ContextKey)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}
}
