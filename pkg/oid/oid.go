// Package oid implements the compact 7-octet object identifier encoding used
// for DLMS/COSEM application-context and authentication-mechanism names
// (joint-iso-ccitt(2) country(16) country-name(756) identified-organization(5)
// DLMS-UA(8) context id).
//
// Octet 0 carries joint*40 + country. Octets 1 and 2 carry the 15-bit name
// using the BER subsequent-identifier continuation bit. Octets 3 to 6 carry
// organization, UA, context and id verbatim.
package oid

import (
	"errors"
	"fmt"
)

// Size is the encoded length of an object identifier in octets.
const Size = 7

var (
	// ErrInvalidLength is returned when parsing a slice that is not Size octets.
	ErrInvalidLength = errors.New("oid: encoded identifier must be 7 bytes")

	// ErrNotRepresentable is returned when an identifier has no compact encoding.
	ErrNotRepresentable = errors.New("oid: identifier not representable in compact form")
)

// ObjectIdentifier is the decoded form of a compact object identifier.
type ObjectIdentifier struct {
	JointISOCCITT uint8
	Country       uint8
	Name          uint16
	Organization  uint8
	UA            uint8
	Context       uint8
	ID            uint8
}

// Decode decodes a 7-octet compact identifier. Every input decodes.
func Decode(b [Size]byte) ObjectIdentifier {
	o := ObjectIdentifier{
		JointISOCCITT: b[0] / 40,
		Country:       b[0] % 40,
		Organization:  b[3],
		UA:            b[4],
		Context:       b[5],
		ID:            b[6],
	}

	v := uint16(b[1])<<8 | uint16(b[2])
	if v&0x0100 != 0 {
		o.Name = uint16(b[2]|0x80) + ((v&0x7FFF)>>1)&0xFF00
	} else {
		o.Name = v & 0x7FFF
	}
	return o
}

// Parse decodes a compact identifier from a slice.
func Parse(b []byte) (ObjectIdentifier, error) {
	if len(b) != Size {
		return ObjectIdentifier{}, ErrInvalidLength
	}
	return Decode([Size]byte(b)), nil
}

// Representable reports whether o has a compact encoding that decodes back to o.
//
// The name field round-trips in two shapes:
//   - bit 7 set: the high octet must be at most 0x3F
//   - bit 7 clear: the high octet must be even and at most 0x7E
//
// Country must be below 40 and joint*40+country must fit an octet.
func (o ObjectIdentifier) Representable() bool {
	if o.Country >= 40 || int(o.JointISOCCITT)*40+int(o.Country) > 0xFF {
		return false
	}
	hi := o.Name >> 8
	if o.Name&0x80 != 0 {
		return hi <= 0x3F
	}
	return hi&0x01 == 0 && hi <= 0x7E
}

// Encode encodes o in compact form.
// Returns ErrNotRepresentable when Decode would not return o.
func (o ObjectIdentifier) Encode() ([Size]byte, error) {
	var b [Size]byte
	if !o.Representable() {
		return b, ErrNotRepresentable
	}

	b[0] = o.JointISOCCITT*40 + o.Country
	b[2] = byte(o.Name & 0x7F)
	if o.Name&0x80 != 0 {
		b[1] = byte(o.Name>>8)<<1 | 0x81
	} else {
		b[1] = byte(o.Name>>8) | 0x80
	}
	b[3] = o.Organization
	b[4] = o.UA
	b[5] = o.Context
	b[6] = o.ID
	return b, nil
}

// MustEncode is like Encode but panics if o is not representable.
// Intended for package-level well-known names.
func (o ObjectIdentifier) MustEncode() [Size]byte {
	b, err := o.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// String returns the dotted arc notation.
func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d.%d",
		o.JointISOCCITT, o.Country, o.Name, o.Organization, o.UA, o.Context, o.ID)
}
