// Package httpx holds request parsing helpers shared by the fiber handlers.
package httpx

import (
	"strings"
	"time"

	"zaikokanri-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name, "must be a UUID")
	}
	return id, nil
}

// QueryUUID returns nil when the parameter is absent.
func QueryUUID(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation(name, "must be a UUID")
	}
	return &id, nil
}

// QueryDate returns nil when the parameter is absent.
func QueryDate(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	d, err := ParseDate(name, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func ParseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperr.Validation(field, "must be formatted as YYYY-MM-DD")
	}
	return d, nil
}

// OptionalString trims s and maps blank input to an absent value.
func OptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func Body(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("body", "malformed request body")
	}
	return nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
