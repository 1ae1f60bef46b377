package acse

import (
	"fmt"

	"github.com/backkem/dlms/pkg/axdr"
	"github.com/backkem/dlms/pkg/oid"
	"golang.org/x/crypto/cryptobyte"
)

// Result is the association-result of an AARE.
type Result uint8

const (
	ResultAccepted          Result = 0
	ResultRejectedPermanent Result = 1
	ResultRejectedTransient Result = 2
)

// String returns the name of the result.
func (r Result) String() string {
	switch r {
	case ResultAccepted:
		return "accepted"
	case ResultRejectedPermanent:
		return "rejected-permanent"
	case ResultRejectedTransient:
		return "rejected-transient"
	default:
		return fmt.Sprintf("Result(%d)", uint8(r))
	}
}

// Source selects which service produced the result-source-diagnostic.
type Source uint8

const (
	SourceServiceUser     Source = 0xA1
	SourceServiceProvider Source = 0xA2
)

// String returns the name of the diagnostic source.
func (s Source) String() string {
	switch s {
	case SourceServiceUser:
		return "acse-service-user"
	case SourceServiceProvider:
		return "acse-service-provider"
	default:
		return fmt.Sprintf("Source(0x%02X)", uint8(s))
	}
}

// Diagnostic is the result-source-diagnostic value reported in an AARE.
type Diagnostic uint8

const (
	DiagnosticSuccess      Diagnostic = 0x00
	DiagnosticContextName  Diagnostic = 0x01
	DiagnosticNoReason     Diagnostic = 0x02
	DiagnosticCallingTitle Diagnostic = 0x03
	DiagnosticAuthFailure  Diagnostic = 0x0D
	DiagnosticHighLevel    Diagnostic = 0x0E
)

// String returns the name of the diagnostic.
func (d Diagnostic) String() string {
	switch d {
	case DiagnosticSuccess:
		return "success-no-security"
	case DiagnosticContextName:
		return "failure-context-name"
	case DiagnosticNoReason:
		return "failure-no-reason"
	case DiagnosticCallingTitle:
		return "failure-calling-title"
	case DiagnosticAuthFailure:
		return "failure-auth"
	case DiagnosticHighLevel:
		return "success-high-level"
	default:
		return fmt.Sprintf("Diagnostic(0x%02X)", uint8(d))
	}
}

// protocolVersionEcho is the fixed protocol-version value sent back when the
// request proposed one.
var protocolVersionEcho = []byte{0x07, 0x80}

// Response describes an AARE.
type Response struct {
	// EchoProtocolVersion emits the 80 02 07 80 element.
	EchoProtocolVersion bool

	ApplicationContext oid.ObjectIdentifier
	Result             Result
	Source             Source
	Diagnostic         Diagnostic

	// RespondingTitle, when non-nil, emits the responding-AP-title element.
	RespondingTitle []byte

	// Mechanism and StoC, when StoC is non-nil, emit the responder ACSE
	// requirements, the mechanism name and the server challenge.
	Mechanism oid.Mechanism
	StoC      []byte

	// UserInformation is the xDLMS payload wrapped in BE <len> 04 <len>.
	UserInformation []byte
}

// Marshal encodes the AARE.
func (r *Response) Marshal() ([]byte, error) {
	ctx, err := r.ApplicationContext.Encode()
	if err != nil {
		return nil, fmt.Errorf("acse: application context: %w", err)
	}
	if len(r.RespondingTitle) > MaxTitleSize {
		return nil, fmt.Errorf("%w: responding title", ErrElementTooLong)
	}
	if len(r.StoC) > 0xFF-2 {
		return nil, fmt.Errorf("%w: challenge", ErrElementTooLong)
	}

	body := cryptobyte.NewBuilder(nil)

	if r.EchoProtocolVersion {
		addElement(body, TagProtocolVersion, protocolVersionEcho)
	}
	body.AddUint8(TagApplicationContextName)
	body.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		addElement(b, 0x06, ctx[:])
	})
	body.AddUint8(TagResult)
	body.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		addElement(b, 0x02, []byte{byte(r.Result)})
	})
	body.AddUint8(TagResultSourceDiagnostic)
	body.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(uint8(r.source()))
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			addElement(b, 0x02, []byte{byte(r.Diagnostic)})
		})
	})
	if r.RespondingTitle != nil {
		body.AddUint8(TagRespondingAPTitle)
		body.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			addElement(b, 0x04, r.RespondingTitle)
		})
	}
	if r.StoC != nil {
		mech := r.Mechanism.Bytes()
		addElement(body, TagResponderRequirements, protocolVersionEcho)
		addElement(body, TagRespondingMechanismName, mech[:])
		body.AddUint8(TagRespondingAuthValue)
		body.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			addElement(b, 0x80, r.StoC)
		})
	}
	if r.UserInformation != nil {
		body.AddUint8(TagUserInformation)
		axdr.AddLength(body, 1+axdr.EncodedSize(len(r.UserInformation))+len(r.UserInformation))
		body.AddUint8(0x04)
		axdr.AddLength(body, len(r.UserInformation))
		body.AddBytes(r.UserInformation)
	}

	content, err := body.Bytes()
	if err != nil {
		return nil, fmt.Errorf("acse: build AARE: %w", err)
	}

	out := cryptobyte.NewBuilder(make([]byte, 0, len(content)+4))
	out.AddUint8(TagAARE)
	axdr.AddLength(out, len(content))
	out.AddBytes(content)
	return out.Bytes()
}

// Encode writes the AARE into dst and returns the number of bytes written.
func (r *Response) Encode(dst []byte) (int, error) {
	b, err := r.Marshal()
	if err != nil {
		return 0, err
	}
	if len(b) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, b), nil
}

func (r *Response) source() Source {
	if r.Source == 0 {
		return SourceServiceUser
	}
	return r.Source
}

func addElement(b *cryptobyte.Builder, tag uint8, value []byte) {
	b.AddUint8(tag)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(value)
	})
}
