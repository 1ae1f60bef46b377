package keys

import "errors"

var (
	// ErrNotFound is returned when no value is stored for a kind and reference.
	ErrNotFound = errors.New("keys: not found")

	// ErrInvalidKind is returned for an unknown key kind.
	ErrInvalidKind = errors.New("keys: invalid kind")

	// ErrValueTooLong is returned when a value exceeds the size of its kind.
	ErrValueTooLong = errors.New("keys: value too long")

	// ErrEmptyValue is returned when storing an empty value.
	ErrEmptyValue = errors.New("keys: empty value")
)
