package counting

import (
	"zaikokanri-backend/internal/apperr"
	"zaikokanri-backend/internal/auth"
	"zaikokanri-backend/internal/httpx"
	"zaikokanri-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	StoreID *uuid.UUID `json:"store_id"`
	Date    string     `json:"date"` // YYYY-MM-DD
}

type UpsertLineRequest struct {
	CaseCount  int64 `json:"case_count"`
	LooseCount int64 `json:"loose_count"`
}

type LineResponse struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	CaseCount   int64     `json:"case_count"`
	LooseCount  int64     `json:"loose_count"`
	UnitPerCase int       `json:"unit_per_case"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   string    `json:"updated_at"`
}

type SessionResponse struct {
	ID          uuid.UUID      `json:"id"`
	StoreID     *uuid.UUID     `json:"store_id"`
	Date        string         `json:"date"`
	Status      string         `json:"status"`
	CompletedAt *string        `json:"completed_at"`
	CreatedAt   string         `json:"created_at"`
	Lines       []LineResponse `json:"lines,omitempty"`
}

type TotalsResponse struct {
	SessionID          uuid.UUID   `json:"session_id"`
	Status             string      `json:"status"`
	LineCount          int         `json:"line_count"`
	TotalQuantity      int64       `json:"total_quantity"`
	Valuation          string      `json:"valuation"`
	ValuedLines        int         `json:"valued_lines"`
	UnvaluedProductIDs []uuid.UUID `json:"unvalued_product_ids"`
}

func toLineResponse(l *models.CountLine) LineResponse {
	return LineResponse{
		ProductID:   l.ProductID,
		ProductName: l.Product.Name,
		CaseCount:   l.CaseCount,
		LooseCount:  l.LooseCount,
		UnitPerCase: l.UnitPerCaseSnapshot,
		Quantity:    l.Quantity(),
		UpdatedAt:   httpx.FormatTime(l.UpdatedAt),
	}
}

func toSessionResponse(s *models.InventorySession) SessionResponse {
	res := SessionResponse{
		ID:        s.ID,
		StoreID:   s.StoreID,
		Date:      httpx.FormatDate(s.Date),
		Status:    string(s.Status),
		CreatedAt: httpx.FormatTime(s.CreatedAt),
	}
	if s.CompletedAt != nil {
		at := httpx.FormatTime(*s.CompletedAt)
		res.CompletedAt = &at
	}
	for i := range s.Lines {
		res.Lines = append(res.Lines, toLineResponse(&s.Lines[i]))
	}
	return res
}

// GET /api/inventory-sessions?store_id=&status=&from=&to=
func ListHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := FilterFromQuery(c)
		if err != nil {
			return err
		}
		list, err := e.ListSessions(c.UserContext(), f)
		if err != nil {
			return err
		}
		res := make([]SessionResponse, 0, len(list))
		for i := range list {
			res = append(res, toSessionResponse(&list[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/inventory-sessions
func CreateHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSessionRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}
		date, err := httpx.ParseDate("date", body.Date)
		if err != nil {
			return err
		}
		storeID, ok := auth.ScopeFrom(c).Resolve(body.StoreID)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
		}

		s, err := e.CreateSession(c.UserContext(), CreateSessionInput{StoreID: storeID, Date: date})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toSessionResponse(s))
	}
}

// GET /api/inventory-sessions/:id
func GetHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		return c.JSON(toSessionResponse(s))
	}
}

// DELETE /api/inventory-sessions/:id
func DeleteHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		if err := e.DeleteSession(c.UserContext(), s.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PUT /api/inventory-sessions/:id/lines/:productId
func UpsertLineHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		productID, err := httpx.ParamUUID(c, "productId")
		if err != nil {
			return err
		}
		var body UpsertLineRequest
		if err := httpx.Body(c, &body); err != nil {
			return err
		}

		line, err := e.UpsertCountLine(c.UserContext(), UpsertCountLineInput{
			SessionID:    s.ID,
			ProductID:    productID,
			CaseCount:    body.CaseCount,
			LooseCount:   body.LooseCount,
			ActorStoreID: auth.ScopeFrom(c).StoreID,
		})
		if err != nil {
			return err
		}
		return c.JSON(toLineResponse(line))
	}
}

// DELETE /api/inventory-sessions/:id/lines/:productId
func DeleteLineHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		productID, err := httpx.ParamUUID(c, "productId")
		if err != nil {
			return err
		}
		if err := e.DeleteCountLine(c.UserContext(), s.ID, productID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/inventory-sessions/:id/complete
func CompleteHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		s, err = e.CompleteSession(c.UserContext(), s.ID)
		if err != nil {
			return err
		}
		return c.JSON(toSessionResponse(s))
	}
}

// GET /api/inventory-sessions/:id/totals
func TotalsHandler(e *Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := scoped(c, e)
		if err != nil {
			return err
		}
		t, err := e.GetSessionTotals(c.UserContext(), s.ID)
		if err != nil {
			return err
		}
		return c.JSON(TotalsResponse{
			SessionID:          t.SessionID,
			Status:             string(t.Status),
			LineCount:          t.LineCount,
			TotalQuantity:      t.TotalQuantity,
			Valuation:          t.Valuation.String(),
			ValuedLines:        t.ValuedLines,
			UnvaluedProductIDs: t.UnvaluedProductIDs,
		})
	}
}

// FilterFromQuery reads the session list filters and pins the store to the
// caller's scope.
func FilterFromQuery(c *fiber.Ctx) (SessionFilter, error) {
	from, err := httpx.QueryDate(c, "from")
	if err != nil {
		return SessionFilter{}, err
	}
	to, err := httpx.QueryDate(c, "to")
	if err != nil {
		return SessionFilter{}, err
	}
	requested, err := httpx.QueryUUID(c, "store_id")
	if err != nil {
		return SessionFilter{}, err
	}
	storeID, ok := auth.ScopeFrom(c).Resolve(requested)
	if !ok {
		return SessionFilter{}, fiber.NewError(fiber.StatusForbidden, "store outside of caller scope")
	}

	// scoped callers also see global sessions, as they do by id
	f := SessionFilter{StoreID: storeID, IncludeGlobal: auth.ScopeFrom(c).StoreID != nil, From: from, To: to}
	switch status := models.SessionStatus(c.Query("status")); status {
	case "":
	case models.SessionDraft, models.SessionCompleted:
		f.Status = status
	default:
		return SessionFilter{}, apperr.Validation("status", "must be draft or completed")
	}
	return f, nil
}

func scoped(c *fiber.Ctx, e *Engine) (*models.InventorySession, error) {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	s, err := e.GetSession(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if !auth.ScopeFrom(c).Allows(s.StoreID) {
		return nil, apperr.NotFound(entitySession, id)
	}
	return s, nil
}
