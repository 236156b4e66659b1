package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	m := NewDefaultErrorMapper()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrTransient},
		{"not found", errors.New("skill does not exist"), ErrNotFound},
		{"forbidden", errors.New("403 Forbidden"), ErrDenied},
		{"rate", errors.New("429 too many requests"), ErrRateLimited},
		{"connection", errors.New("dial tcp: connection refused"), ErrTransient},
		{"other", errors.New("boom"), ErrInternal},
		{"already categorized", Upstream("webhook failed"), ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, m.MapError(tt.in), tt.want)
		})
	}

	assert.NoError(t, m.MapError(nil))
	assert.ErrorIs(t, m.MapError(context.Canceled), context.Canceled)
}

func TestCategoryAndStatus(t *testing.T) {
	assert.Equal(t, "ErrDenied", Category(Denied("blocked")))
	assert.Equal(t, "ErrConfiguration", Category(Configuration("no url")))
	assert.Equal(t, "Unknown", Category(errors.New("x")))
	assert.Equal(t, "", Category(nil))

	assert.Equal(t, http.StatusForbidden, HTTPStatus(Denied("x")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimited("x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Upstream("x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
}

func TestWrapWithCategoryKeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	err := WrapWithCategory(cause, "mcp fetch", ErrUpstream)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, WrapWithCategory(nil, "x", ErrUpstream))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("timeout")))
	assert.False(t, IsRetryable(Denied("no")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestMessageStripsCategory(t *testing.T) {
	assert.Equal(t, "Webhook failed: 500 Internal Server Error", Message(Upstream("Webhook failed: 500 Internal Server Error")))
	assert.Equal(t, "Template not found: x", Message(NotFound("Template not found: x")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
}
