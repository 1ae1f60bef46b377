package security

import "errors"

var (
	// ErrNotCiphered is returned when a payload does not start with an envelope tag.
	ErrNotCiphered = errors.New("security: payload is not ciphered")

	// ErrNotRequest is returned when a response envelope arrives where a
	// request is expected.
	ErrNotRequest = errors.New("security: envelope is not a request")

	// ErrTruncated is returned when an envelope ends before its declared length.
	ErrTruncated = errors.New("security: truncated envelope")

	// ErrLengthMismatch is returned when an envelope length does not span
	// exactly the remaining bytes.
	ErrLengthMismatch = errors.New("security: envelope length mismatch")

	// ErrUnknownControl is returned for a security control byte outside the
	// five supported profiles.
	ErrUnknownControl = errors.New("security: unknown security control")

	// ErrLayoutMismatch is returned when the security control does not match
	// the envelope layout.
	ErrLayoutMismatch = errors.New("security: security control does not match envelope layout")

	// ErrInvalidSystemTitle is returned when a general-ciphering title is not 8 bytes.
	ErrInvalidSystemTitle = errors.New("security: system title must be 8 bytes")

	// ErrMissingKey is returned when the encryption key is absent.
	ErrMissingKey = errors.New("security: missing encryption key")

	// ErrAuthFailed is returned when a tag or HLS reply does not verify.
	ErrAuthFailed = errors.New("security: authentication failed")

	// ErrUnsupportedMechanism is returned for HLS mechanisms without a
	// standard function (mechanism 2 is manufacturer specific).
	ErrUnsupportedMechanism = errors.New("security: unsupported authentication mechanism")

	// ErrMissingSecret is returned when an HLS function lacks its key material.
	ErrMissingSecret = errors.New("security: missing HLS secret")
)
