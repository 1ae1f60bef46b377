package acse

import "errors"

var (
	// ErrTruncated is returned when an element runs past the end of its frame.
	ErrTruncated = errors.New("acse: truncated frame")

	// ErrLengthMismatch is returned when the outer length does not span
	// exactly the remaining bytes.
	ErrLengthMismatch = errors.New("acse: length mismatch")

	// ErrUnexpectedTag is returned when a frame starts with the wrong APDU tag.
	ErrUnexpectedTag = errors.New("acse: unexpected APDU tag")

	// ErrBufferTooSmall is returned when an output buffer cannot hold a response.
	ErrBufferTooSmall = errors.New("acse: output buffer too small")

	// ErrElementTooLong is returned when an element value exceeds its limit.
	ErrElementTooLong = errors.New("acse: element too long")

	// ErrMissingElement is returned when a required response element is absent.
	ErrMissingElement = errors.New("acse: missing element")
)
