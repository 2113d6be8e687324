package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("report not found")
	ErrExists   = errors.New("report already exists")
	ErrConflict = errors.New("report was modified concurrently")
	// ErrUnrecoverable marks a report that can never be written as is.
	ErrUnrecoverable = errors.New("report cannot be encoded")
)
