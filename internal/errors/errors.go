package errors

import (
	"errors"
)

// Common error types
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrUnsupportedMode  = errors.New("unsupported mode")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrRequestTooLarge  = errors.New("request too large")
	ErrInternal         = errors.New("internal error")
)
