// Package keys loads the passwords, keys and titles used to establish DLMS
// associations.
//
// Secrets are stored per logical device. A value stored for a specific
// session overrides the logical device wide value for that session only.
package keys

import (
	"errors"

	"github.com/pion/logging"
)

// AllSessions is the session number of values shared by every session of a
// logical device.
const AllSessions = ^uint32(0)

// Ref addresses the secrets of one association.
type Ref struct {
	LogicalDevice uint16
	Session       uint32
}

// Loader supplies association secrets. A missing value is reported with
// ErrNotFound.
type Loader interface {
	Password(ref Ref) ([]byte, error)
	ManagementPassword(ref Ref) ([]byte, error)
	AuthenticationKey(ref Ref) ([]byte, error)
	EncryptionKey(ref Ref) ([]byte, error)
	ServerSigningKey(ref Ref) ([]byte, error)
	ClientVerificationKey(ref Ref) ([]byte, error)
	LocalTitle(ref Ref) ([]byte, error)
}

// Store is a raw key/value backend for secrets.
//
// Lookup must return ErrNotFound when nothing is stored at exactly
// (kind, ref). Implementations must be safe for concurrent use.
type Store interface {
	Lookup(kind Kind, ref Ref) ([]byte, error)
}

// StoreLoader implements Loader on top of a Store, falling back from the
// session specific value to the logical device wide one.
type StoreLoader struct {
	store Store
	log   logging.LeveledLogger
}

var _ Loader = (*StoreLoader)(nil)

// NewLoader creates a Loader backed by store. A nil factory disables logging.
func NewLoader(store Store, loggerFactory logging.LoggerFactory) *StoreLoader {
	l := &StoreLoader{store: store}
	if loggerFactory != nil {
		l.log = loggerFactory.NewLogger("keys")
	}
	return l
}

// Get looks up a value of the given kind for ref.
func (l *StoreLoader) Get(kind Kind, ref Ref) ([]byte, error) {
	v, err := l.store.Lookup(kind, ref)
	if errors.Is(err, ErrNotFound) && ref.Session != AllSessions {
		v, err = l.store.Lookup(kind, Ref{LogicalDevice: ref.LogicalDevice, Session: AllSessions})
	}
	if err != nil {
		if l.log != nil {
			l.log.Debugf("no %s for logical device 0x%04X session %d: %v", kind, ref.LogicalDevice, ref.Session, err)
		}
		return nil, err
	}
	return v, nil
}

// Password returns the low-level security password.
func (l *StoreLoader) Password(ref Ref) ([]byte, error) { return l.Get(KindPassword, ref) }

// ManagementPassword returns the password of the management logical device.
func (l *StoreLoader) ManagementPassword(ref Ref) ([]byte, error) {
	return l.Get(KindManagementPassword, ref)
}

// AuthenticationKey returns the global authentication key.
func (l *StoreLoader) AuthenticationKey(ref Ref) ([]byte, error) {
	return l.Get(KindAuthentication, ref)
}

// EncryptionKey returns the global unicast encryption key.
func (l *StoreLoader) EncryptionKey(ref Ref) ([]byte, error) { return l.Get(KindEncryption, ref) }

// ServerSigningKey returns the server ECDSA private scalar.
func (l *StoreLoader) ServerSigningKey(ref Ref) ([]byte, error) {
	return l.Get(KindServerSigning, ref)
}

// ClientVerificationKey returns the client ECDSA public key (X || Y).
func (l *StoreLoader) ClientVerificationKey(ref Ref) ([]byte, error) {
	return l.Get(KindClientVerification, ref)
}

// LocalTitle returns the server system title.
func (l *StoreLoader) LocalTitle(ref Ref) ([]byte, error) { return l.Get(KindLocalTitle, ref) }
