package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndIs(t *testing.T) {
	err := fmt.Errorf("send: %w", Validation("Message content cannot be empty"))

	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, KindOf(err).Status())
	assert.Equal(t, "Message content cannot be empty", PublicMessage(err))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connection refused")
	err := Internal("append message", cause)

	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Internal Server Error", PublicMessage(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(errors.New("boom")).Status())
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, KindAuth.Status())
	assert.Equal(t, http.StatusForbidden, KindForbidden.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
}
