package config

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrInvalidSecret is returned when a secret value cannot be decoded.
	ErrInvalidSecret = errors.New("config: invalid secret")

	// ErrInvalidLogLevel is returned for an unknown log level name.
	ErrInvalidLogLevel = errors.New("config: invalid log level")
)
