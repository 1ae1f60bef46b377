// Package xdlms implements the xDLMS initiate exchange carried inside the
// ACSE user-information field: InitiateRequest parsing, conformance
// negotiation, InitiateResponse and the initiate ConfirmedServiceError.
package xdlms

// DefaultMaxPDU is the default server ceiling for the negotiated max-PDU size.
const DefaultMaxPDU = 512

// Negotiation is the server-side outcome of an InitiateRequest.
type Negotiation struct {
	// Request is the parsed request. It is zero (version 0) when Err is set.
	Request InitiateRequest

	// Conformance is the granted conformance block, always a subset of the
	// capability it was negotiated against.
	Conformance Conformance

	// MaxPDU is the client max-PDU clamped to the server ceiling.
	MaxPDU uint16

	// Err records why the request could not be parsed.
	Err error
}

// Negotiate parses an InitiateRequest and matches it against a capability.
// A ceiling of zero selects DefaultMaxPDU. A malformed request yields a
// negotiation with version 0 and zero conformance.
func Negotiate(initiate []byte, capability Conformance, ceiling uint16) Negotiation {
	if ceiling == 0 {
		ceiling = DefaultMaxPDU
	}

	req, err := ParseInitiateRequest(initiate)
	if err != nil {
		return Negotiation{Err: err}
	}

	n := Negotiation{
		Request:     req,
		Conformance: NegotiateConformance(capability, req.ProposedConformance),
		MaxPDU:      req.ClientMaxPDU,
	}
	if n.MaxPDU > ceiling {
		n.MaxPDU = ceiling
	}
	return n
}

// Rejection reports the initiate error a server must answer with, checked
// in order: version, conformance, PDU size.
func (n Negotiation) Rejection() (InitiateError, bool) {
	switch {
	case n.Request.ProposedVersion < DLMSVersion:
		return InitiateErrorVersionTooLow, true
	case n.Conformance == 0:
		return InitiateErrorIncompatibleConformance, true
	case n.MaxPDU < MinMaxPDU:
		return InitiateErrorPDUSizeTooShort, true
	}
	return InitiateErrorOther, false
}

// Response returns the InitiateResponse for an accepted negotiation.
func (n Negotiation) Response() InitiateResponse {
	return InitiateResponse{Conformance: n.Conformance, ServerMaxPDU: n.MaxPDU}
}
