package association

import "errors"

var (
	// ErrPoolFull is returned when no slot is free for a new association.
	ErrPoolFull = errors.New("association: pool full")

	// ErrUnknownLogicalDevice is returned for a logical device missing from
	// the capability registry.
	ErrUnknownLogicalDevice = errors.New("association: unknown logical device")

	// ErrNoContext is returned when no association exists for a session.
	ErrNoContext = errors.New("association: no association for session")

	// ErrNotAssociated is returned when data arrives before association.
	ErrNotAssociated = errors.New("association: not associated")

	// ErrHandleInvalid is returned by handle methods used outside the
	// dispatch call that produced the handle.
	ErrHandleInvalid = errors.New("association: handle no longer valid")

	// ErrNotPending is returned when accepting a challenge outside the
	// association-pending state.
	ErrNotPending = errors.New("association: association not pending")

	// ErrFrameCounterExhausted is returned when the frame counter would wrap.
	ErrFrameCounterExhausted = errors.New("association: frame counter exhausted")

	// ErrInvalidTitle is returned for a system title longer than 8 bytes.
	ErrInvalidTitle = errors.New("association: system title too long")

	// ErrInvalidConfig is returned for an invalid dispatcher configuration.
	ErrInvalidConfig = errors.New("association: invalid configuration")
)
