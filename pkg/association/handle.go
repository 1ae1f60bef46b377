package association

import (
	"bytes"

	"github.com/backkem/dlms/pkg/oid"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/security"
)

// Handle gives the application handler access to the association an APDU
// arrived on. A Handle is only valid for the duration of the handler call
// it was passed to; every accessor returns the zero value afterwards.
type Handle struct {
	c       *Context
	valid   bool
	refresh bool
}

func newHandle(c *Context) *Handle {
	return &Handle{c: c, valid: true}
}

func (h *Handle) context() *Context {
	if h == nil || !h.valid {
		return nil
	}
	return h.c
}

func (h *Handle) invalidate() {
	h.valid = false
	h.c = nil
}

// Valid reports whether the handle may still be used.
func (h *Handle) Valid() bool {
	return h.context() != nil
}

// Session returns the session the association is bound to.
func (h *Handle) Session() Session {
	if c := h.context(); c != nil {
		return c.session
	}
	return Session{}
}

// SessionID returns the transport session handle.
func (h *Handle) SessionID() uint32 {
	return h.Session().ID
}

// Suit returns the suit bitmap of the bound logical device.
func (h *Handle) Suit() uint8 {
	return h.Capability().Suit
}

// Status returns the association status.
func (h *Handle) Status() Status {
	if c := h.context(); c != nil {
		return c.status
	}
	return StatusNonAssociated
}

// AccessLevel returns the granted access level.
func (h *Handle) AccessLevel() AccessLevel {
	if c := h.context(); c != nil {
		return c.level
	}
	return AccessNone
}

// Capability returns the descriptor of the bound logical device.
func (h *Handle) Capability() registry.Descriptor {
	if c := h.context(); c != nil {
		return c.capability
	}
	return registry.Descriptor{}
}

// ApplicationContext returns the application context name the client proposed.
func (h *Handle) ApplicationContext() oid.ObjectIdentifier {
	if c := h.context(); c != nil {
		return c.applicationContext
	}
	return oid.ObjectIdentifier{}
}

// Mechanism returns the authentication mechanism name in use.
func (h *Handle) Mechanism() oid.ObjectIdentifier {
	if c := h.context(); c != nil {
		return c.mechanism
	}
	return oid.ObjectIdentifier{}
}

// InitiateInfo returns the negotiated xDLMS initiate state.
func (h *Handle) InitiateInfo() InitiateInfo {
	if c := h.context(); c != nil {
		return c.info
	}
	return InitiateInfo{}
}

// SecurityControl returns the security control byte of the ciphered
// initiate-request, or ControlNone.
func (h *Handle) SecurityControl() security.Control {
	return h.InitiateInfo().SecurityControl
}

// MTU returns the negotiated max-PDU size, never less than 32.
func (h *Handle) MTU() int {
	mtu := int(h.InitiateInfo().MaxPDU)
	if mtu < minMTU {
		return minMTU
	}
	return mtu
}

// CallingTitle returns the client system title.
func (h *Handle) CallingTitle() []byte {
	if c := h.context(); c != nil {
		return c.callingTitle
	}
	return nil
}

// SetCallingTitle replaces the client system title.
func (h *Handle) SetCallingTitle(title []byte) error {
	c := h.context()
	if c == nil {
		return ErrHandleInvalid
	}
	if len(title) > MaxTitleSize {
		return ErrInvalidTitle
	}
	c.callingTitle = bytes.Clone(title)
	return nil
}

// LocalTitle returns the server system title, or nil unless it is exactly
// 8 bytes.
func (h *Handle) LocalTitle() []byte {
	c := h.context()
	if c == nil || len(c.localTitle) != MaxTitleSize {
		return nil
	}
	return c.localTitle
}

// CtoS returns the client challenge of a high-level association.
func (h *Handle) CtoS() []byte {
	if c := h.context(); c != nil {
		return challenge(c.ctos)
	}
	return nil
}

// StoC returns the server challenge of a high-level association.
func (h *Handle) StoC() []byte {
	if c := h.context(); c != nil {
		return challenge(c.stoc)
	}
	return nil
}

func challenge(b []byte) []byte {
	if len(b) == 0 || len(b) > MaxChallengeSize {
		return nil
	}
	return b
}

// AcceptChallenge completes a pending high-level association once the
// client's reply to StoC has been verified.
func (h *Handle) AcceptChallenge() error {
	c := h.context()
	if c == nil {
		return ErrHandleInvalid
	}
	if c.status != StatusPending {
		return ErrNotPending
	}
	c.status = StatusAssociated
	c.level = AccessHigh
	return nil
}

// NextFrameCounter increments and returns the outbound frame counter.
func (h *Handle) NextFrameCounter() (uint32, error) {
	c := h.context()
	if c == nil {
		return 0, ErrHandleInvalid
	}
	return c.nextFrameCounter()
}

// AuthenticationKey returns the global authentication key.
func (h *Handle) AuthenticationKey() []byte {
	if c := h.context(); c != nil {
		return c.authenticationKey
	}
	return nil
}

// EncryptionKey returns the global unicast encryption key.
func (h *Handle) EncryptionKey() []byte {
	if c := h.context(); c != nil {
		return c.encryptionKey
	}
	return nil
}

// DedicatedKey returns the dedicated key carried in the initiate-request.
func (h *Handle) DedicatedKey() []byte {
	if c := h.context(); c != nil {
		return c.dedicatedKey
	}
	return nil
}

// ServerSigningKey returns the server ECDSA private key.
func (h *Handle) ServerSigningKey() []byte {
	if c := h.context(); c != nil {
		return c.signingKey
	}
	return nil
}

// ClientVerificationKey returns the client ECDSA public key.
func (h *Handle) ClientVerificationKey() []byte {
	if c := h.context(); c != nil {
		return c.verifyKey
	}
	return nil
}

// HLS returns the challenge material of the association for mechanism
// pass 3/pass 4 processing. Secret is left for the caller to fill.
func (h *Handle) HLS() security.HLS {
	c := h.context()
	if c == nil {
		return security.HLS{}
	}
	return security.HLS{
		Mechanism:   oid.Mechanism(c.mechanism.ID),
		Keys:        c.securityKeys(),
		SigningKey:  c.signingKey,
		VerifyKey:   c.verifyKey,
		ClientTitle: c.callingTitle,
		ServerTitle: c.paddedLocalTitle(),
		CtoS:        challenge(c.ctos),
		StoC:        challenge(c.stoc),
	}
}

// Storage returns the application scratch area attached to the association.
func (h *Handle) Storage() []byte {
	if c := h.context(); c != nil {
		return c.storage
	}
	return nil
}

// StorageSize returns the size of the scratch area.
func (h *Handle) StorageSize() int {
	return len(h.Storage())
}

// AttachStorage attaches a zeroed scratch area of size bytes, replacing
// (and clearing) any previous one.
func (h *Handle) AttachStorage(size int) []byte {
	c := h.context()
	if c == nil || size < 0 {
		return nil
	}
	zero(c.storage)
	c.storage = make([]byte, size)
	return c.storage
}

// RequestKeyRefresh asks the dispatcher to reload the association's
// keys once the handler returns.
func (h *Handle) RequestKeyRefresh() {
	if h.context() != nil {
		h.refresh = true
	}
}
