package acse

import (
	"fmt"
	"strings"

	"github.com/backkem/dlms/pkg/oid"
	"github.com/moov-io/bertlv"
)

// Request describes an AARQ as sent by a client.
type Request struct {
	// ProtocolVersion emits the 80 02 02 84 element.
	ProtocolVersion bool

	ApplicationContext oid.ApplicationContext
	Mechanism          oid.Mechanism

	// CallingTitle is the client system title (omitted when nil).
	CallingTitle []byte

	// AuthValue is the password (mechanism 1) or CtoS challenge (mechanisms 2+).
	AuthValue []byte

	// UserInformation is the plain or ciphered xDLMS initiate-request.
	UserInformation []byte
}

// Marshal encodes the AARQ.
func (r *Request) Marshal() ([]byte, error) {
	ctx := r.ApplicationContext.Bytes()

	var elems []bertlv.TLV
	if r.ProtocolVersion {
		elems = append(elems, bertlv.TLV{Tag: tagHex(TagProtocolVersion), Value: protocolVersion1})
	}
	elems = append(elems, constructed(TagApplicationContextName, 0x06, ctx[:]))
	if r.CallingTitle != nil {
		elems = append(elems, constructed(TagCallingAPTitle, 0x04, r.CallingTitle))
	}
	if r.Mechanism != oid.MechanismLowest {
		mech := r.Mechanism.Bytes()
		elems = append(elems,
			bertlv.TLV{Tag: tagHex(TagSenderRequirements), Value: protocolVersionEcho},
			bertlv.TLV{Tag: tagHex(TagMechanismName), Value: mech[:]},
			constructed(TagCallingAuthValue, 0x80, r.AuthValue),
		)
	}
	if r.UserInformation != nil {
		elems = append(elems, constructed(TagUserInformation, 0x04, r.UserInformation))
	}

	b, err := bertlv.Encode([]bertlv.TLV{{Tag: tagHex(TagAARQ), TLVs: elems}})
	if err != nil {
		return nil, fmt.Errorf("acse: encode AARQ: %w", err)
	}
	return b, nil
}

// ParseResponse decodes an AARE as received by a client.
func ParseResponse(b []byte) (*Response, error) {
	packets, err := bertlv.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("acse: decode AARE: %w", err)
	}
	if len(packets) != 1 || !tagIs(packets[0], TagAARE) {
		return nil, ErrUnexpectedTag
	}

	resp := &Response{}
	var haveContext, haveResult bool
	for _, p := range packets[0].TLVs {
		switch {
		case tagIs(p, TagProtocolVersion):
			resp.EchoProtocolVersion = true

		case tagIs(p, TagApplicationContextName):
			v, ok := childValue(p, 0x06)
			if !ok {
				return nil, fmt.Errorf("%w: application context", ErrMissingElement)
			}
			if resp.ApplicationContext, err = oid.Parse(v); err != nil {
				return nil, fmt.Errorf("acse: application context: %w", err)
			}
			haveContext = true

		case tagIs(p, TagResult):
			v, ok := childValue(p, 0x02)
			if !ok || len(v) != 1 {
				return nil, fmt.Errorf("%w: result", ErrMissingElement)
			}
			resp.Result = Result(v[0])
			haveResult = true

		case tagIs(p, TagResultSourceDiagnostic):
			if len(p.TLVs) != 1 {
				return nil, fmt.Errorf("%w: result source diagnostic", ErrMissingElement)
			}
			src := p.TLVs[0]
			switch {
			case tagIs(src, byte(SourceServiceUser)):
				resp.Source = SourceServiceUser
			case tagIs(src, byte(SourceServiceProvider)):
				resp.Source = SourceServiceProvider
			default:
				return nil, fmt.Errorf("%w: diagnostic source %s", ErrUnexpectedTag, src.Tag)
			}
			v, ok := childValue(src, 0x02)
			if !ok || len(v) != 1 {
				return nil, fmt.Errorf("%w: diagnostic", ErrMissingElement)
			}
			resp.Diagnostic = Diagnostic(v[0])

		case tagIs(p, TagRespondingAPTitle):
			resp.RespondingTitle, _ = childValue(p, 0x04)

		case tagIs(p, TagRespondingMechanismName):
			o, err := oid.Parse(p.Value)
			if err != nil {
				return nil, fmt.Errorf("acse: mechanism name: %w", err)
			}
			resp.Mechanism = oid.Mechanism(o.ID)

		case tagIs(p, TagRespondingAuthValue):
			resp.StoC, _ = childValue(p, 0x80)

		case tagIs(p, TagUserInformation):
			resp.UserInformation, _ = childValue(p, 0x04)
		}
	}

	if !haveContext || !haveResult {
		return nil, ErrMissingElement
	}
	return resp, nil
}

func tagHex(tag byte) string {
	return fmt.Sprintf("%02X", tag)
}

func tagIs(t bertlv.TLV, tag byte) bool {
	return strings.EqualFold(t.Tag, tagHex(tag))
}

func constructed(tag, inner byte, value []byte) bertlv.TLV {
	return bertlv.TLV{
		Tag:  tagHex(tag),
		TLVs: []bertlv.TLV{{Tag: tagHex(inner), Value: value}},
	}
}

func childValue(t bertlv.TLV, tag byte) ([]byte, bool) {
	for _, c := range t.TLVs {
		if tagIs(c, tag) {
			return c.Value, true
		}
	}
	return nil, false
}
