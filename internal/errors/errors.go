package errors

import (
	"errors"
)

// Sentinel errors for the tool pipeline categories
var (
	// ErrDenied - security gate refused the invocation (returned to the model as {error})
	ErrDenied = errors.New("denied")

	// ErrUpstream - template engine, webhook endpoint or MCP server failed
	ErrUpstream = errors.New("upstream failure")

	// ErrConfiguration - missing or malformed skill config, unknown provider, missing key
	ErrConfiguration = errors.New("configuration error")

	// ErrRegistry - skill or MCP registry could not be read
	ErrRegistry = errors.New("registry failure")

	// ErrRateLimited - a rate limit counter refused the request
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput - invalid input (bad JSON arguments, oversized message)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrTransient - transient error (timeouts, connection resets)
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
