package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorMapper maps external errors onto the ClawSync error taxonomy
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

// DefaultErrorMapper implements ErrorMapper using message heuristics
type DefaultErrorMapper struct{}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps external errors to ClawSync error categories
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrTransient)
	}

	if Category(err) != "Unknown" {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	case strings.Contains(errStr, "permission denied"), strings.Contains(errStr, "forbidden"):
		return fmt.Errorf("%v: %w", err, ErrDenied)
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("%v: %w", err, ErrRateLimited)
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "connection"):
		return fmt.Errorf("%v: %w", err, ErrTransient)
	default:
		return fmt.Errorf("%v: %w", err, ErrInternal)
	}
}

func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

func (m *DefaultErrorMapper) Category(err error) string {
	return Category(err)
}

// Category returns the taxonomy name for err
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrDenied):
		return "ErrDenied"
	case errors.Is(err, ErrRateLimited):
		return "ErrRateLimited"
	case errors.Is(err, ErrUpstream):
		return "ErrUpstream"
	case errors.Is(err, ErrConfiguration):
		return "ErrConfiguration"
	case errors.Is(err, ErrRegistry):
		return "ErrRegistry"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps an error category to the status code the HTTP API reports
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, ErrRegistry):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps err and tags it with category, keeping both in the chain
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, category, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

func Denied(message string) error {
	return fmt.Errorf("%s: %w", message, ErrDenied)
}

func Upstream(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUpstream)
}

func Configuration(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfiguration)
}

func Registry(message string) error {
	return fmt.Errorf("%s: %w", message, ErrRegistry)
}

func RateLimited(message string) error {
	return fmt.Errorf("%s: %w", message, ErrRateLimited)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable reports whether err is transient
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

var categories = []error{
	ErrDenied, ErrUpstream, ErrConfiguration, ErrRegistry, ErrRateLimited,
	ErrInvalidInput, ErrNotFound, ErrTransient, ErrInternal,
}

// Message returns err's text without the trailing category label added by
// the helpers above. This is the form surfaced to the model.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, c := range categories {
		if cut, ok := strings.CutSuffix(msg, ": "+c.Error()); ok {
			return cut
		}
	}
	return msg
}
