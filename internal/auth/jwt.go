package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are issued by the identity provider in front of this service.
// StoreID, when present, restricts the caller to a single store.
type Claims struct {
	StoreID *string `json:"store_id,omitempty"`
	jwt.RegisteredClaims
}

func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (c *Claims) Scope() (Scope, error) {
	s := Scope{Actor: c.Subject}
	if c.StoreID != nil && *c.StoreID != "" {
		id, err := uuid.Parse(*c.StoreID)
		if err != nil {
			return Scope{}, fmt.Errorf("store_id claim: %w", err)
		}
		s.StoreID = &id
	}
	return s, nil
}
