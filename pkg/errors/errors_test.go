package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestIsHelpers_Wrapped(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"normalization", NewNormalizationError("r1", "title", "title is empty"), IsNormalizationError},
		{"configuration", NewConfigurationError("high", "must be within [0,1]"), IsConfigurationError},
		{"transient", NewTransientStoreError("commit", stderrors.New("connection reset")), IsTransientStoreError},
		{"conflict", NewCommitConflictError("e1", "acme", "version changed"), IsCommitConflictError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("resolve: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.False(t, tt.check(stderrors.New("plain")))
		})
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"normalization", NewNormalizationError("r1", "title", "title is empty"), http.StatusUnprocessableEntity},
		{"configuration", NewConfigurationErrorf("low", "%v > %v", 0.9, 0.8), http.StatusInternalServerError},
		{"transient", NewTransientStoreError("load", nil), http.StatusServiceUnavailable},
		{"conflict", NewCommitConflictError("e1", "", "already resolved"), http.StatusConflict},
		{"http error", httperror.NewHTTPError(http.StatusNotFound, "not found"), http.StatusNotFound},
		{"plain", stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpErr := ToHTTPError(fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.code, httpErr.Code)
		})
	}

	assert.Nil(t, ToHTTPError(nil))
}

func TestTransientStoreError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewTransientStoreError("commit", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store commit failed: connection reset", err.Error())
}

func TestCommitConflictError_Message(t *testing.T) {
	assert.Equal(t, "commit conflict on entity e1: stale", NewCommitConflictError("e1", "b", "stale").Error())
	assert.Equal(t, "commit conflict on block 'acme': stale", NewCommitConflictError("", "acme", "stale").Error())
	assert.Equal(t, "commit conflict: stale", NewCommitConflictError("", "", "stale").Error())
}
