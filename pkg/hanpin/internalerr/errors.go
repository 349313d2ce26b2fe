package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrResourceMissing = errors.New("required resource missing")
	ErrAdvisory        = errors.New("advisory call failed")
)
