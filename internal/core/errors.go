package core

import "errors"

// Sentinel errors the API layer maps onto HTTP status codes.
var (
	// ErrEmptyMessage and ErrInvalidFileType reject bad input before any
	// state is created.
	ErrEmptyMessage    = errors.New("message is required")
	ErrInvalidFileType = errors.New("file must be a PDF")

	ErrDocumentNotFound = errors.New("document not found")
	ErrSessionNotFound  = errors.New("session not found")

	// ErrModelUnavailable marks a failed embedding or completion call.
	// The condition is retryable; anything persisted before the failure
	// stays persisted.
	ErrModelUnavailable = errors.New("language model unavailable")
)
