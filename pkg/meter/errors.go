package meter

import "errors"

// Package-level errors.
var (
	// ErrNotInitialized is returned when an operation requires an initialized server.
	ErrNotInitialized = errors.New("meter: server not initialized")

	// ErrAlreadyStarted is returned when Start() is called on a running server.
	ErrAlreadyStarted = errors.New("meter: server already started")

	// ErrNotStarted is returned when an operation requires a running server.
	ErrNotStarted = errors.New("meter: server not started")

	// ErrAlreadyStopped is returned when Stop() is called on a stopped server.
	ErrAlreadyStopped = errors.New("meter: server already stopped")

	// ErrInvalidConfig is returned when ServerConfig validation fails.
	ErrInvalidConfig = errors.New("meter: invalid configuration")

	// ErrRegistryRequired is returned when Registry is nil or empty.
	ErrRegistryRequired = errors.New("meter: registry is required")

	// ErrKeysRequired is returned when Keys is nil.
	ErrKeysRequired = errors.New("meter: key loader is required")

	// ErrMalformedAction is returned for an action-request that cannot be parsed.
	ErrMalformedAction = errors.New("meter: malformed action-request")
)
