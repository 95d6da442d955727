package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const CtxScopeKey = "scope"

// Scope is the already-authenticated caller: who they are and which store
// they act for. A nil StoreID means every store.
type Scope struct {
	Actor   string
	StoreID *uuid.UUID
}

// Allows reports whether an entity owned by storeID is visible in the scope.
// Store-less entities are global and visible everywhere.
func (s Scope) Allows(storeID *uuid.UUID) bool {
	if s.StoreID == nil || storeID == nil {
		return true
	}
	return *s.StoreID == *storeID
}

// Resolve picks the store a write should target: scoped callers are pinned
// to their store, unrestricted callers use whatever they asked for.
func (s Scope) Resolve(requested *uuid.UUID) (*uuid.UUID, bool) {
	if s.StoreID == nil {
		return requested, true
	}
	if requested == nil {
		return s.StoreID, true
	}
	return requested, *requested == *s.StoreID
}

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		scope, err := claims.Scope()
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid store scope")
		}

		c.Locals(CtxScopeKey, scope)
		c.SetUserContext(WithActor(c.UserContext(), scope.Actor))
		return c.Next()
	}
}

func ScopeFrom(c *fiber.Ctx) Scope {
	if s, ok := c.Locals(CtxScopeKey).(Scope); ok {
		return s
	}
	return Scope{}
}
