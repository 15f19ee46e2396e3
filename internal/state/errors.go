package state

import "errors"

var (
	// ErrValidation marks a malformed payload. Such payloads are dropped.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an operation on an unknown id. It is never surfaced.
	ErrNotFound = errors.New("not found")
	// ErrTransport marks a lost connection. Recovery is a fresh state init.
	ErrTransport = errors.New("transport unavailable")
	// ErrStaleReadiness marks a rendering surface that never became ready.
	ErrStaleReadiness = errors.New("surface never became ready")
)
