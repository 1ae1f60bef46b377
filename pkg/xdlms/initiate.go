package xdlms

import (
	"golang.org/x/crypto/cryptobyte"
)

// xDLMS APDU tags carried in the user-information field.
const (
	TagInitiateRequest       = 0x01
	TagInitiateResponse      = 0x08
	TagConfirmedServiceError = 0x0E
	TagGloInitiateRequest    = 0x21
	TagGloInitiateResponse   = 0x28
	TagGeneralGloCiphering   = 0xDB
	TagExceptionResponse     = 0xD8
)

// Protocol constants.
const (
	// DLMSVersion is the only xDLMS version this stack speaks.
	DLMSVersion = 6

	// MinMaxPDU is the smallest client max-receive-pdu-size accepted.
	// Values up to and including 0x0B are rejected as too short.
	MinMaxPDU = 0x0C

	// MaxDedicatedKeySize is the largest dedicated key accepted.
	MaxDedicatedKeySize = 32

	// conformanceHeader precedes the 3-octet conformance block:
	// [APPLICATION 31] IMPLICIT BIT STRING, length 4, 0 unused bits.
	conformanceHeader = 0x5F1F0400

	// vaaNameLN is the VAA name used by logical-name referencing servers.
	vaaNameLN = 0x0007
)

// InitiateRequest is the decoded xDLMS InitiateRequest.
type InitiateRequest struct {
	// DedicatedKey is nil when absent.
	DedicatedKey []byte

	// ResponseAllowed defaults to true when the optional field is absent.
	ResponseAllowed bool

	// ProposedQuality is valid only when HasQuality is set.
	ProposedQuality uint8
	HasQuality      bool

	ProposedVersion     uint8
	ProposedConformance Conformance
	ClientMaxPDU        uint16
}

// ParseInitiateRequest decodes an InitiateRequest starting at its 0x01 tag.
// Trailing bytes are ignored.
func ParseInitiateRequest(b []byte) (InitiateRequest, error) {
	req := InitiateRequest{ResponseAllowed: true}
	s := cryptobyte.String(b)

	var tag uint8
	if !s.ReadUint8(&tag) {
		return req, ErrTruncated
	}
	if tag != TagInitiateRequest {
		return req, ErrUnexpectedTag
	}

	// dedicated-key OCTET STRING OPTIONAL
	var flag uint8
	if !s.ReadUint8(&flag) {
		return req, ErrTruncated
	}
	if flag != 0 {
		var key cryptobyte.String
		if !s.ReadUint8LengthPrefixed(&key) {
			return req, ErrTruncated
		}
		if len(key) > MaxDedicatedKeySize {
			return req, ErrDedicatedKeyTooLong
		}
		req.DedicatedKey = append([]byte(nil), key...)
	}

	// response-allowed BOOLEAN DEFAULT TRUE
	if !s.ReadUint8(&flag) {
		return req, ErrTruncated
	}
	if flag != 0 {
		var v uint8
		if !s.ReadUint8(&v) {
			return req, ErrTruncated
		}
		req.ResponseAllowed = v != 0
	}

	// proposed-quality-of-service [0] IMPLICIT Integer8 OPTIONAL
	if !s.ReadUint8(&flag) {
		return req, ErrTruncated
	}
	if flag != 0 {
		if !s.ReadUint8(&req.ProposedQuality) {
			return req, ErrTruncated
		}
		req.HasQuality = true
	}

	if !s.ReadUint8(&req.ProposedVersion) {
		return req, ErrTruncated
	}

	var header uint32
	if !s.ReadUint32(&header) {
		return req, ErrTruncated
	}
	if header != conformanceHeader {
		return req, ErrBadConformanceHeader
	}
	var conf uint32
	if !s.ReadUint24(&conf) {
		return req, ErrTruncated
	}
	req.ProposedConformance = Conformance(conf)

	if !s.ReadUint16(&req.ClientMaxPDU) {
		return req, ErrTruncated
	}
	return req, nil
}

// AppendInitiateRequest appends the encoding of req to dst.
func AppendInitiateRequest(dst []byte, req InitiateRequest) ([]byte, error) {
	if len(req.DedicatedKey) > MaxDedicatedKeySize {
		return dst, ErrDedicatedKeyTooLong
	}

	b := cryptobyte.NewBuilder(dst)
	b.AddUint8(TagInitiateRequest)
	if req.DedicatedKey != nil {
		b.AddUint8(0x01)
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(req.DedicatedKey)
		})
	} else {
		b.AddUint8(0x00)
	}
	if !req.ResponseAllowed {
		b.AddUint8(0x01)
		b.AddUint8(0x00)
	} else {
		b.AddUint8(0x00)
	}
	if req.HasQuality {
		b.AddUint8(0x01)
		b.AddUint8(req.ProposedQuality)
	} else {
		b.AddUint8(0x00)
	}
	b.AddUint8(req.ProposedVersion)
	b.AddUint32(conformanceHeader)
	b.AddUint24(uint32(req.ProposedConformance & ConformanceMask))
	b.AddUint16(req.ClientMaxPDU)
	return b.Bytes()
}

// InitiateResponse is the server's reply to an accepted InitiateRequest.
type InitiateResponse struct {
	Conformance  Conformance
	ServerMaxPDU uint16
}

// AppendInitiateResponse appends the InitiateResponse encoding to dst:
// 08 00 06 5F 1F 04 00 c0 c1 c2 pduH pduL 00 07.
func AppendInitiateResponse(dst []byte, resp InitiateResponse) []byte {
	c := resp.Conformance.Bytes()
	return append(dst,
		TagInitiateResponse,
		0x00, // negotiated-quality-of-service absent
		DLMSVersion,
		0x5F, 0x1F, 0x04, 0x00,
		c[0], c[1], c[2],
		byte(resp.ServerMaxPDU>>8), byte(resp.ServerMaxPDU),
		byte(vaaNameLN>>8), byte(vaaNameLN),
	)
}

// ParseInitiateResponse decodes an InitiateResponse starting at its 0x08 tag.
func ParseInitiateResponse(b []byte) (InitiateResponse, error) {
	var resp InitiateResponse
	s := cryptobyte.String(b)

	var tag, flag, version uint8
	if !s.ReadUint8(&tag) || !s.ReadUint8(&flag) {
		return resp, ErrTruncated
	}
	if tag != TagInitiateResponse {
		return resp, ErrUnexpectedTag
	}
	if flag != 0 && !s.Skip(1) {
		return resp, ErrTruncated
	}
	if !s.ReadUint8(&version) {
		return resp, ErrTruncated
	}

	var header, conf uint32
	if !s.ReadUint32(&header) {
		return resp, ErrTruncated
	}
	if header != conformanceHeader {
		return resp, ErrBadConformanceHeader
	}
	if !s.ReadUint24(&conf) || !s.ReadUint16(&resp.ServerMaxPDU) {
		return resp, ErrTruncated
	}
	resp.Conformance = Conformance(conf)
	return resp, nil
}

// InitiateError is the initiateError value of a ConfirmedServiceError.
type InitiateError uint8

// Initiate error values.
const (
	InitiateErrorOther                   InitiateError = 0
	InitiateErrorVersionTooLow           InitiateError = 1
	InitiateErrorIncompatibleConformance InitiateError = 2
	InitiateErrorPDUSizeTooShort         InitiateError = 3
	InitiateErrorRefusedByVDEHandler     InitiateError = 4
)

// String returns the name of the initiate error.
func (e InitiateError) String() string {
	switch e {
	case InitiateErrorOther:
		return "other"
	case InitiateErrorVersionTooLow:
		return "dlms-version-too-low"
	case InitiateErrorIncompatibleConformance:
		return "incompatible-conformance"
	case InitiateErrorPDUSizeTooShort:
		return "pdu-size-too-short"
	case InitiateErrorRefusedByVDEHandler:
		return "refused-by-the-VDE-handler"
	default:
		return "unknown"
	}
}

// serviceErrorInitiate selects the initiate choice of ServiceError.
const serviceErrorInitiate = 0x06

// AppendConfirmedServiceError appends the rejection marker 0E 01 06 xx to dst.
func AppendConfirmedServiceError(dst []byte, e InitiateError) []byte {
	return append(dst, TagConfirmedServiceError, 0x01, serviceErrorInitiate, byte(e))
}

// ParseConfirmedServiceError decodes a rejection marker produced by
// AppendConfirmedServiceError.
func ParseConfirmedServiceError(b []byte) (InitiateError, error) {
	if len(b) < 4 {
		return 0, ErrTruncated
	}
	if b[0] != TagConfirmedServiceError || b[2] != serviceErrorInitiate {
		return 0, ErrUnexpectedTag
	}
	return InitiateError(b[3]), nil
}
