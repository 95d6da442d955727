package ledger

import (
	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseRequest struct {
	StoreID     *uuid.UUID       `json:"store_id"`
	Date        string           `json:"date"` // YYYY-MM-DD
	ImageURL    *string          `json:"image_url"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

type PurchaseResponse struct {
	ID          uuid.UUID        `json:"id"`
	StoreID     *uuid.UUID       `json:"store_id"`
	Date        string           `json:"date"`
	ImageURL    *string          `json:"image_url"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	CreatedAt   string           `json:"created_at"`
}

func toResponse(p *models.Purchase) PurchaseResponse {
	res := PurchaseResponse{
		ID:        p.ID,
		StoreID:   p.StoreID,
		Date:      httpx.FormatDate(p.Date),
		ImageURL:  p.ImageURL,
		CreatedAt: httpx.FormatTime(p.CreatedAt),
	}
	if p.TotalAmount.Valid {
		amt := p.TotalAmount.Decimal
		res.TotalAmount = &amt
	}
	return res
}

// FilterFromQuery reads ?from=&to=&store_id= and pins the store to the
// caller's scope.
func FilterFromQuery(c *fiber.Ctx) (Filter, error) {
	from, err := httpx.QueryDate(c, "from")
	if err != nil {
		return Filter{}, err
	}
	to, err := httpx.QueryDate(c, "to")
	if err != nil {
		return Filter{}, err
	}
	requested, err := httpx.QueryUUID(c, "store_id")
	if err != nil {
		return Filter{}, err
	}
	storeID, ok := auth.ScopeFrom(c).Resolve(requested)
	if !ok {
		return Filter{}, fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
	}
	return Filter{From: from, To: to, StoreID: storeID, IncludeGlobal: auth.ScopeFrom(c).StoreID != nil}, nil
}

// GET /api/purchases?from=&to=&store_id=
func ListHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := FilterFromQuery(c)
		if err != nil {
			return err
		}
		list, err := l.ListPurchases(c.UserContext(), f)
		if err != nil {
			return err
		}
		res := make([]PurchaseResponse, 0, len(list))
		for i := range list {
			res = append(res, toResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/purchases/:id
func GetHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, l)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// POST /api/purchases
func CreateHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		p, err := l.CreatePurchase(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(p))
	}
}

// PUT /api/purchases/:id
func UpdateHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, l)
		if err != nil {
			return err
		}
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		p, err = l.UpdatePurchase(c.UserContext(), p.ID, in)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// DELETE /api/purchases/:id
func DeleteHandler(l *Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := scoped(c, l)
		if err != nil {
			return err
		}
		if err := l.DeletePurchase(c.UserContext(), p.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func parseInput(c *fiber.Ctx) (Input, error) {
	var body PurchaseRequest
	if err := httpx.Body(c, &body); err != nil {
		return Input{}, err
	}
	date, err := httpx.ParseDate("date", body.Date)
	if err != nil {
		return Input{}, err
	}
	storeID, ok := auth.ScopeFrom(c).Resolve(body.StoreID)
	if !ok {
		return Input{}, fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
	}
	return Input{
		StoreID:     storeID,
		Date:        date,
		ImageURL:    body.ImageURL,
		TotalAmount: body.TotalAmount,
	}, nil
}

func scoped(c *fiber.Ctx, l *Ledger) (*models.Purchase, error) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	p, err := l.GetPurchase(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !auth.ScopeFrom(c).Allows(p.StoreID) {
		return nil, apperr.NotFound(entity, id)
	}
	return p, nil
}
