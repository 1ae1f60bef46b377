package apdulog

import (
	"fmt"
	"time"
)

// Record is one traced APDU.
type Record struct {
	// Timestamp when the APDU was received or sent.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Transport is "tcp" or "udp".
	Transport string `cbor:"4,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// LogicalDevice is the server wPort.
	LogicalDevice uint16 `cbor:"6,keyasint"`

	// Client is the client wPort.
	Client uint16 `cbor:"7,keyasint"`

	// APDU is the raw APDU.
	APDU []byte `cbor:"8,keyasint"`

	// Note carries a free-form annotation, e.g. why a request was dropped.
	Note string `cbor:"9,keyasint,omitempty"`
}

// Tag returns the first byte of the APDU, or 0 for an empty one.
func (r *Record) Tag() byte {
	if len(r.APDU) == 0 {
		return 0
	}
	return r.APDU[0]
}

// String returns a one-line summary.
func (r Record) String() string {
	return fmt.Sprintf("%s %s %s ld=0x%04X client=0x%04X %s (%d bytes)",
		r.Timestamp.Format(time.RFC3339Nano), r.ConnectionID, r.Direction,
		r.LogicalDevice, r.Client, TagName(r.Tag()), len(r.APDU))
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an APDU received from a client.
	DirectionIn Direction = 0
	// DirectionOut indicates an APDU sent to a client.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

var tagNames = map[byte]string{
	0x60: "AARQ",
	0x61: "AARE",
	0x62: "RLRQ",
	0x63: "RLRE",
	0xC0: "get-request",
	0xC1: "set-request",
	0xC3: "action-request",
	0xC4: "get-response",
	0xC5: "set-response",
	0xC7: "action-response",
	0xC8: "glo-get-request",
	0xCB: "glo-action-request",
	0xCC: "glo-get-response",
	0xCF: "glo-action-response",
	0xD8: "exception-response",
	0xDB: "general-glo-ciphering",
}

// TagName returns the name of an APDU tag.
func TagName(tag byte) string {
	if name, ok := tagNames[tag]; ok {
		return name
	}
	return fmt.Sprintf("tag(0x%02X)", tag)
}
