package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("asset", "a1")))
	assert.Equal(t, ErrCodeValidation, CodeOf(InvalidInput("reason", "required")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", Conflict("busy"))
	assert.Equal(t, ErrCodeConflict, CodeOf(wrapped))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, `asset "a1" not found`, MessageOf(NotFound("asset", "a1")))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "query failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "query failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{InvalidInput("field", "bad"), http.StatusBadRequest},
		{Unauthorized("no role"), http.StatusForbidden},
		{NotFound("asset", "a1"), http.StatusNotFound},
		{Conflict("active workflow exists"), http.StatusConflict},
		{New(ErrCodeConfig, "no sequence"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err))
	}
}
