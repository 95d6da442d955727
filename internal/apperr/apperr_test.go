package apperr

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	id := uuid.MustParse("7b0cf2a4-2f57-4a5e-9b7a-7d8c1b9f0e11")

	err := fmt.Errorf("upsert: %w", Conflict("inventory_session", id, "session is completed"))
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "upsert: inventory_session 7b0cf2a4-2f57-4a5e-9b7a-7d8c1b9f0e11: session is completed", err.Error())

	err = fmt.Errorf("get: %w", NotFound("product", id))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "get: product 7b0cf2a4-2f57-4a5e-9b7a-7d8c1b9f0e11 not found", err.Error())

	err = Validation("case_count", "must not be negative")
	assert.True(t, IsValidation(err))
	assert.Equal(t, "case_count: must not be negative", err.Error())
}
