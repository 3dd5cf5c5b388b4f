package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthKindsCollapseToUnauthorized(t *testing.T) {
	kinds := []*Error{ErrMissingCredentials, ErrTokenInvalid, ErrSessionNotFound, ErrDeviceMismatch, ErrRefreshReplayed, ErrInvalidCredentials, ErrInactiveAccount}
	for _, kind := range kinds {
		wrapped := fmt.Errorf("context: %w", kind)
		assert.True(t, IsAuthFailure(wrapped), kind.Code)

		public := Public(wrapped)
		assert.Equal(t, ErrUnauthorized.Code, public.Code, kind.Code)
		assert.Equal(t, http.StatusUnauthorized, public.Status)
	}
}

func TestStorageFailureStaysServerError(t *testing.T) {
	err := Wrap(errors.New("dial tcp: refused"), ErrStorageFailure.Code, ErrStorageFailure.Status, "failed to load session")
	assert.False(t, IsAuthFailure(err))
	assert.Equal(t, http.StatusInternalServerError, Public(err).Status)
	assert.True(t, Is(err, ErrStorageFailure))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
	assert.Nil(t, Public(nil))
}

func TestCloneKeepsCode(t *testing.T) {
	clone := Clone(ErrConflict, "email already registered")
	assert.Equal(t, ErrConflict.Code, clone.Code)
	assert.Equal(t, "email already registered", clone.Message)
	assert.Equal(t, "conflict", ErrConflict.Message)
	assert.True(t, Is(clone, ErrConflict))
}
