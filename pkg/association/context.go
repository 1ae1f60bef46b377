package association

import (
	"bytes"
	"math"

	"github.com/backkem/dlms/pkg/acse"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/oid"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/security"
	"github.com/backkem/dlms/pkg/xdlms"
)

// Key material size limits.
const (
	MaxTitleSize           = 8
	MaxSymmetricKeySize    = 32
	MaxSigningKeySize      = 48
	MaxVerificationKeySize = 96
	MaxChallengeSize       = 64
	ChallengeSize          = 16
	minMTU                 = 32
)

// Session identifies the transport session an APDU arrived on. The logical
// device is the destination wPort; ID is the transport session handle.
type Session struct {
	LogicalDevice uint16
	ID            uint32
}

func (s Session) ref() keys.Ref {
	return keys.Ref{LogicalDevice: s.LogicalDevice, Session: s.ID}
}

// InitiateInfo is the negotiated xDLMS initiate state of an association.
type InitiateInfo struct {
	SecurityControl security.Control
	ResponseAllowed bool
	ProposedQuality uint8
	HasQuality      bool
	Version         uint8
	Conformance     xdlms.Conformance
	MaxPDU          uint16
}

// Context is the state of one association. It is owned by the Pool slot
// holding it and is only reached through the Dispatcher and call-scoped
// Handles.
type Context struct {
	// === Identity ===
	session    Session
	capability registry.Descriptor

	// === Outcome ===
	status     Status
	diagnostic acse.Diagnostic
	level      AccessLevel

	// === Negotiated names ===
	applicationContext oid.ObjectIdentifier
	mechanism          oid.ObjectIdentifier

	// === Titles ===
	callingTitle []byte
	localTitle   []byte

	// === Keys ===
	authenticationKey []byte
	encryptionKey     []byte
	dedicatedKey      []byte
	signingKey        []byte
	verifyKey         []byte

	// === HLS challenges ===
	ctos []byte
	stoc []byte

	// === xDLMS ===
	info         InitiateInfo
	frameCounter uint32

	storage []byte
}

// newContext creates a fresh context for sess bound to capability, loading
// its titles and keys. frameCounter seeds the outbound frame counter.
func newContext(sess Session, capability registry.Descriptor, loader keys.Loader, frameCounter uint32) *Context {
	c := &Context{
		session:      sess,
		capability:   capability,
		frameCounter: frameCounter,
		mechanism:    oid.MechanismLowest.OID(),
	}
	if loader != nil {
		c.localTitle = load(loader.LocalTitle, sess.ref(), MaxTitleSize)
		c.loadKeys(loader)
	}
	return c
}

// loadKeys (re)loads the keys that may rotate while an association lives.
func (c *Context) loadKeys(loader keys.Loader) {
	ref := c.session.ref()
	c.replaceKey(&c.authenticationKey, load(loader.AuthenticationKey, ref, MaxSymmetricKeySize))
	c.replaceKey(&c.encryptionKey, load(loader.EncryptionKey, ref, MaxSymmetricKeySize))
	c.replaceKey(&c.signingKey, load(loader.ServerSigningKey, ref, MaxSigningKeySize))
	c.replaceKey(&c.verifyKey, load(loader.ClientVerificationKey, ref, MaxVerificationKeySize))
}

func (c *Context) replaceKey(dst *[]byte, v []byte) {
	zero(*dst)
	*dst = v
}

// load fetches one value, treating errors and oversized values as absent.
func load(get func(keys.Ref) ([]byte, error), ref keys.Ref, limit int) []byte {
	v, err := get(ref)
	if err != nil || len(v) == 0 || len(v) > limit {
		return nil
	}
	return bytes.Clone(v)
}

// needsKeyRefresh reports whether the context uses high-level security keys.
func (c *Context) needsKeyRefresh() bool {
	return c.status == StatusPending ||
		(c.status == StatusAssociated && c.diagnostic == acse.DiagnosticHighLevel)
}

// securityKeys returns the keys used for the initiate envelopes.
func (c *Context) securityKeys() security.Keys {
	return security.Keys{Encryption: c.encryptionKey, Authentication: c.authenticationKey}
}

// nextFrameCounter increments and returns the frame counter.
func (c *Context) nextFrameCounter() (uint32, error) {
	if c.frameCounter == math.MaxUint32 {
		return 0, ErrFrameCounterExhausted
	}
	c.frameCounter++
	return c.frameCounter, nil
}

// paddedLocalTitle returns the local title as the 8 bytes carried on the wire.
func (c *Context) paddedLocalTitle() []byte {
	t := make([]byte, MaxTitleSize)
	copy(t, c.localTitle)
	return t
}

// zeroizeKeys clears all key material and challenges.
func (c *Context) zeroizeKeys() {
	for _, k := range [][]byte{
		c.authenticationKey, c.encryptionKey, c.dedicatedKey,
		c.signingKey, c.verifyKey, c.ctos, c.stoc, c.storage,
	} {
		zero(k)
	}
	c.authenticationKey, c.encryptionKey, c.dedicatedKey = nil, nil, nil
	c.signingKey, c.verifyKey = nil, nil
	c.ctos, c.stoc = nil, nil
	c.storage = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func cloneLimited(b []byte, limit int) []byte {
	if len(b) > limit {
		b = b[:limit]
	}
	return bytes.Clone(b)
}
