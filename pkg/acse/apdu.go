// Package acse implements the Association Control Service Element APDUs used
// to open and close DLMS/COSEM associations.
//
// The server side decodes AARQ frames into a zero-copy AARQ view and builds
// AARE and RLRE responses. The client side (Request, ParseResponse) encodes
// AARQ frames and decodes AARE frames for probes and tests.
//
// Frame layout:
//
//	tag (1) | length (A-XDR) | element*
//	element = tag (1) | length (1) | value
package acse

import "fmt"

// APDU tags.
const (
	TagAARQ = 0x60
	TagAARE = 0x61
	TagRLRQ = 0x62
	TagRLRE = 0x63
)

// AARQ element tags.
const (
	TagProtocolVersion         = 0x80
	TagApplicationContextName  = 0xA1
	TagCalledAPTitle           = 0xA2
	TagCalledAEQualifier       = 0xA3
	TagCallingAPTitle          = 0xA6
	TagCallingAEQualifier      = 0xA7
	TagCallingAPInvocationID   = 0xA8
	TagCallingAEInvocationID   = 0xA9
	TagSenderRequirements      = 0x8A
	TagMechanismName           = 0x8B
	TagCallingAuthValue        = 0xAC
	TagImplementationInfo      = 0x9D
	TagImplementationInfoBlock = 0xBD
	TagUserInformation         = 0xBE
)

// AARE element tags.
const (
	TagResult                  = 0xA2
	TagResultSourceDiagnostic  = 0xA3
	TagRespondingAPTitle       = 0xA4
	TagResponderRequirements   = 0x88
	TagRespondingMechanismName = 0x89
	TagRespondingAuthValue     = 0xAA
)

// Kind classifies an incoming APDU by its first byte.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAARQ
	KindRLRQ
	KindData
)

// Classify returns the kind of apdu. Anything that is not an association or
// release request is data for the application layer.
func Classify(apdu []byte) Kind {
	if len(apdu) == 0 {
		return KindUnknown
	}
	switch apdu[0] {
	case TagAARQ:
		return KindAARQ
	case TagRLRQ:
		return KindRLRQ
	default:
		return KindData
	}
}

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAARQ:
		return "AARQ"
	case KindRLRQ:
		return "RLRQ"
	case KindData:
		return "data"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}
