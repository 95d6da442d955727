package audit

import (
	"time"

	"zaikokanri-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LogResponse struct {
	ID          uint       `json:"id"`
	CreatedAt   string     `json:"created_at"`
	StoreID     *uuid.UUID `json:"store_id"`
	Actor       string     `json:"actor"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Action      string     `json:"action"`
	Description string     `json:"description"`
}

// GET /api/audit-logs?entity_type=inventory_session&entity_id=...&limit=50
func ListHandler(w *Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope := auth.ScopeFrom(c)

		logs, err := w.List(c.UserContext(), Filter{
			StoreID:    scope.StoreID,
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return err
		}

		res := make([]LogResponse, 0, len(logs))
		for _, l := range logs {
			res = append(res, LogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
				StoreID:     l.StoreID,
				Actor:       l.Actor,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      string(l.Action),
				Description: l.Description,
			})
		}
		return c.JSON(res)
	}
}
