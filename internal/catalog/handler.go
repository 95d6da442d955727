package catalog

import (
	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductRequest struct {
	StoreID     *uuid.UUID       `json:"store_id"`
	Name        string           `json:"name"`
	Category    *string          `json:"category"`
	UnitPerCase *int             `json:"unit_per_case"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	ImageURL    *string          `json:"image_url"`
}

type ProductResponse struct {
	ID          uuid.UUID        `json:"id"`
	StoreID     *uuid.UUID       `json:"store_id"`
	Name        string           `json:"name"`
	Category    *string          `json:"category"`
	UnitPerCase int              `json:"unit_per_case"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	ImageURL    *string          `json:"image_url"`
	CreatedAt   string           `json:"created_at"`
}

func ToResponse(p *models.Product) ProductResponse {
	res := ProductResponse{
		ID:          p.ID,
		StoreID:     p.StoreID,
		Name:        p.Name,
		Category:    p.Category,
		UnitPerCase: p.UnitPerCase,
		ImageURL:    p.ImageURL,
		CreatedAt:   httpx.FormatTime(p.CreatedAt),
	}
	if p.CostPrice.Valid {
		cp := p.CostPrice.Decimal
		res.CostPrice = &cp
	}
	return res
}

// GET /api/products?store_id=...
func ListHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requested, err := httpx.QueryUUID(c, "store_id")
		if err != nil {
			return err
		}
		storeID, ok := auth.ScopeFrom(c).Resolve(requested)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
		}

		list, err := cat.ListProducts(c.UserContext(), storeID)
		if err != nil {
			return err
		}
		res := make([]ProductResponse, 0, len(list))
		for i := range list {
			res = append(res, ToResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/products/:id
func GetHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, cat)
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(p))
	}
}

// POST /api/products
func CreateHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		p, err := cat.CreateProduct(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ToResponse(p))
	}
}

// PUT /api/products/:id
func UpdateHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, cat)
		if err != nil {
			return err
		}
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		p, err = cat.UpdateProduct(c.UserContext(), p.ID, in)
		if err != nil {
			return err
		}
		return c.JSON(ToResponse(p))
	}
}

// DELETE /api/products/:id
func DeleteHandler(cat *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, cat)
		if err != nil {
			return err
		}
		if err := cat.DeleteProduct(c.UserContext(), p.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func parseInput(c *fiber.Ctx) (ProductInput, error) {
	var body ProductRequest
	if err := httpx.Body(c, &body); err != nil {
		return ProductInput{}, err
	}
	storeID, ok := auth.ScopeFrom(c).Resolve(body.StoreID)
	if !ok {
		return ProductInput{}, fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
	}
	return ProductInput{
		StoreID:     storeID,
		Name:        body.Name,
		Category:    body.Category,
		UnitPerCase: body.UnitPerCase,
		CostPrice:   body.CostPrice,
		ImageURL:    body.ImageURL,
	}, nil
}

func scoped(c *fiber.Ctx, cat *Catalog) (*models.Product, error) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	p, err := cat.GetProduct(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !auth.ScopeFrom(c).Allows(p.StoreID) {
		return nil, apperr.NotFound(entity, id)
	}
	return p, nil
}
