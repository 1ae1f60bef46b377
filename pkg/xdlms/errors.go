package xdlms

import "errors"

var (
	// ErrTruncated is returned when an APDU ends before a required field.
	ErrTruncated = errors.New("xdlms: truncated apdu")

	// ErrUnexpectedTag is returned when an APDU starts with the wrong tag.
	ErrUnexpectedTag = errors.New("xdlms: unexpected apdu tag")

	// ErrDedicatedKeyTooLong is returned when a dedicated key exceeds 32 bytes.
	ErrDedicatedKeyTooLong = errors.New("xdlms: dedicated key too long")

	// ErrBadConformanceHeader is returned when the conformance block is not
	// introduced by 5F 1F 04 00.
	ErrBadConformanceHeader = errors.New("xdlms: malformed conformance block")
)
