package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when an invalid peer address is provided.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoHandler is returned when no message handler is configured.
	ErrNoHandler = errors.New("transport: no message handler configured")

	// ErrAlreadyStarted is returned when Start is called on an already running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrConnectionNotFound is returned when no connection exists for a peer address.
	ErrConnectionNotFound = errors.New("transport: connection not found for peer")

	// ErrMessageTooLarge is returned when an APDU exceeds the wrapper length field.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrTruncated is returned when a frame is shorter than its header or
	// declared length.
	ErrTruncated = errors.New("transport: truncated frame")

	// ErrLengthMismatch is returned when a datagram carries bytes beyond the
	// declared APDU length.
	ErrLengthMismatch = errors.New("transport: length mismatch")

	// ErrUnsupportedVersion is returned for a wrapper version other than 1.
	ErrUnsupportedVersion = errors.New("transport: unsupported wrapper version")

	// ErrEmptyAPDU is returned for a frame without payload.
	ErrEmptyAPDU = errors.New("transport: empty APDU")
)
