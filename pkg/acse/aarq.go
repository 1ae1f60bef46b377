package acse

import (
	"bytes"

	"github.com/backkem/dlms/pkg/axdr"
	"github.com/backkem/dlms/pkg/oid"
	"golang.org/x/crypto/cryptobyte"
)

// Element size limits.
const (
	// MaxPasswordElement bounds the calling-authentication-value element of a
	// low-level security request (tag, length and a 32-byte password).
	MaxPasswordElement = 34

	// MaxChallengeElement bounds the calling-authentication-value element of
	// a high-level security request (tag, length and a 64-byte challenge).
	MaxChallengeElement = 66

	// MaxTitleSize is the size of a system title.
	MaxTitleSize = 8
)

// protocolVersion1 is the only accepted protocol-version bit string.
var protocolVersion1 = []byte{0x02, 0x84}

// AARQ is a decoded association request. Every field is the raw value of the
// matching element (nil when absent) and aliases the decoded frame.
type AARQ struct {
	ProtocolVersion       []byte
	ApplicationContext    []byte
	CalledAPTitle         []byte
	CalledAEQualifier     []byte
	CallingAPTitle        []byte
	CallingAEQualifier    []byte
	CallingAPInvocationID []byte
	CallingAEInvocationID []byte
	SenderRequirements    []byte
	MechanismName         []byte
	CallingAuthValue      []byte
	ImplementationInfo    []byte
	UserInformation       []byte
}

// DecodeAARQ decodes an AARQ frame. Any framing error (wrong tag, outer length
// not spanning the frame, truncated element) returns the zero AARQ together
// with the error, so callers may treat every field as absent. Unknown elements
// are skipped; a repeated element replaces the earlier one.
func DecodeAARQ(apdu []byte) (AARQ, error) {
	var req AARQ
	s := cryptobyte.String(apdu)

	var tag uint8
	if !s.ReadUint8(&tag) {
		return AARQ{}, ErrTruncated
	}
	if tag != TagAARQ {
		return AARQ{}, ErrUnexpectedTag
	}
	length, ok := axdr.ReadLength(&s)
	if !ok {
		return AARQ{}, ErrTruncated
	}
	if length != len(s) {
		return AARQ{}, ErrLengthMismatch
	}

	for !s.Empty() {
		var (
			elem  uint8
			value cryptobyte.String
		)
		if !s.ReadUint8(&elem) || !s.ReadUint8LengthPrefixed(&value) {
			return AARQ{}, ErrTruncated
		}
		if field := req.field(elem); field != nil {
			*field = value
		}
	}
	return req, nil
}

func (r *AARQ) field(tag uint8) *[]byte {
	switch tag {
	case TagProtocolVersion:
		return &r.ProtocolVersion
	case TagApplicationContextName:
		return &r.ApplicationContext
	case TagCalledAPTitle:
		return &r.CalledAPTitle
	case TagCalledAEQualifier:
		return &r.CalledAEQualifier
	case TagCallingAPTitle:
		return &r.CallingAPTitle
	case TagCallingAEQualifier:
		return &r.CallingAEQualifier
	case TagCallingAPInvocationID:
		return &r.CallingAPInvocationID
	case TagCallingAEInvocationID:
		return &r.CallingAEInvocationID
	case TagSenderRequirements:
		return &r.SenderRequirements
	case TagMechanismName:
		return &r.MechanismName
	case TagCallingAuthValue:
		return &r.CallingAuthValue
	case TagImplementationInfo, TagImplementationInfoBlock:
		return &r.ImplementationInfo
	case TagUserInformation:
		return &r.UserInformation
	}
	return nil
}

// ProtocolVersionValid reports whether the protocol-version element, when
// present, proposes version 1.
func (r *AARQ) ProtocolVersionValid() bool {
	return r.ProtocolVersion == nil || bytes.Equal(r.ProtocolVersion, protocolVersion1)
}

// ApplicationContextOID returns the object identifier carried by the
// application-context-name element (06 07 <oid>).
func (r *AARQ) ApplicationContextOID() (oid.ObjectIdentifier, bool) {
	v := r.ApplicationContext
	if len(v) != 2+oid.Size || v[0] != 0x06 || v[1] != oid.Size {
		return oid.ObjectIdentifier{}, false
	}
	o, err := oid.Parse(v[2:])
	if err != nil {
		return oid.ObjectIdentifier{}, false
	}
	return o, true
}

// MechanismOID returns the mechanism-name object identifier.
func (r *AARQ) MechanismOID() (oid.ObjectIdentifier, bool) {
	if len(r.MechanismName) != oid.Size {
		return oid.ObjectIdentifier{}, false
	}
	o, err := oid.Parse(r.MechanismName)
	if err != nil {
		return oid.ObjectIdentifier{}, false
	}
	return o, true
}

// MechanismID returns the mechanism id (last OID byte). An absent
// mechanism-name selects the lowest level.
func (r *AARQ) MechanismID() oid.Mechanism {
	if len(r.MechanismName) == 0 {
		return oid.MechanismLowest
	}
	return oid.Mechanism(r.MechanismName[len(r.MechanismName)-1])
}

// AuthenticationRequired reports whether the sender-ACSE-requirements bit
// string has the authentication functional unit set.
func (r *AARQ) AuthenticationRequired() bool {
	return len(r.SenderRequirements) >= 2 && r.SenderRequirements[1]&0x80 != 0
}

// AuthValue returns the content of the calling-authentication-value choice
// (80 L <value>).
func (r *AARQ) AuthValue() ([]byte, bool) {
	return innerValue(r.CallingAuthValue, 0x80)
}

// CallingTitle returns the calling-AP-title octet string (04 L <title>).
func (r *AARQ) CallingTitle() ([]byte, bool) {
	return innerValue(r.CallingAPTitle, 0x04)
}

// InitiateRequest returns the user-information octet string (04 L <data>),
// which carries a plain or ciphered xDLMS initiate-request.
func (r *AARQ) InitiateRequest() ([]byte, bool) {
	v := r.UserInformation
	if len(v) == 0 || v[0] != 0x04 {
		return nil, false
	}
	s := cryptobyte.String(v[1:])
	length, ok := axdr.ReadLength(&s)
	if !ok || length != len(s) {
		return nil, false
	}
	return s, true
}

func innerValue(v []byte, tag byte) ([]byte, bool) {
	s := cryptobyte.String(v)
	var (
		t     uint8
		inner cryptobyte.String
	)
	if !s.ReadUint8(&t) || t != tag || !s.ReadUint8LengthPrefixed(&inner) || !s.Empty() {
		return nil, false
	}
	return inner, true
}
