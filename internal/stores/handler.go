package stores

import (
	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type StoreRequest struct {
	Name    string  `json:"name"`
	Address *string `json:"address"`
}

type StoreResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	CreatedAt string    `json:"created_at"`
}

func toResponse(s *models.Store) StoreResponse {
	return StoreResponse{
		ID:        s.ID,
		Name:      s.Name,
		Address:   s.Address,
		CreatedAt: httpx.FormatTime(s.CreatedAt),
	}
}

// GET /api/stores
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := svc.List(c.UserContext(), auth.ScopeFrom(c).StoreID)
		if err != nil {
			return err
		}
		res := make([]StoreResponse, 0, len(list))
		for i := range list {
			res = append(res, toResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/stores/:id
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := scoped(c, svc)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(st))
	}
}

// POST /api/stores (unscoped callers only)
func CreateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if auth.ScopeFrom(c).StoreID != nil {
			return fiber.NewError(fiber.StatusForbidden, "store-scoped callers cannot create stores")
		}
		var body StoreRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		st, err := svc.Create(c.UserContext(), Input{Name: body.Name, Address: body.Address})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(st))
	}
}

// PUT /api/stores/:id
func UpdateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := scoped(c, svc)
		if err != nil {
			return err
		}
		var body StoreRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		st, err = svc.Update(c.UserContext(), st.ID, Input{Name: body.Name, Address: body.Address})
		if err != nil {
			return err
		}
		return c.JSON(toResponse(st))
	}
}

// DELETE /api/stores/:id
func DeleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := scoped(c, svc)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), st.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func scoped(c *fiber.Ctx, svc *Service) (*models.Store, error) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	if !auth.ScopeFrom(c).Allows(&id) {
		return nil, apperr.NotFound(entity, id)
	}
	return svc.Get(c.UserContext(), id)
}
