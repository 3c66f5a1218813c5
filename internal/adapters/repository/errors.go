package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrUnknownBackend = errors.New("unknown state backend")
	ErrNotConfigured  = errors.New("state store is not configured")
)
