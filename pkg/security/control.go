// Package security implements DLMS ciphering of xDLMS APDUs: parsing and
// building the glo-ciphered (0x21/0x28) and general-glo-ciphered (0xDB)
// envelopes, AES-GCM protection under the five security-control profiles,
// and the HLS challenge/response functions.
//
// Profiles:
//   - 0x10: authentication only; body = plaintext || GMAC(SC || AK || plaintext)
//   - 0x20: encryption only; body = AES-CTR(plaintext), no tag
//   - 0x30: authenticated encryption; body = ciphertext || tag, AAD = SC || AK
//   - 0x31/0x32: as 0x30, carried in the general-glo-ciphering layout
//
// The IV is always system title (8 bytes) || frame counter (4 bytes BE).
package security

import "fmt"

// Control is the security control byte of a ciphered APDU.
type Control uint8

// Security control values.
const (
	ControlNone                    Control = 0x00
	ControlAuthentication          Control = 0x10
	ControlEncryption              Control = 0x20
	ControlAuthenticatedEncryption Control = 0x30
	ControlGeneralSuite1           Control = 0x31
	ControlGeneralSuite2           Control = 0x32
)

// String returns the name of the control value.
func (c Control) String() string {
	switch c {
	case ControlNone:
		return "none"
	case ControlAuthentication:
		return "authentication"
	case ControlEncryption:
		return "encryption"
	case ControlAuthenticatedEncryption:
		return "authenticated-encryption"
	case ControlGeneralSuite1:
		return "general-suite1"
	case ControlGeneralSuite2:
		return "general-suite2"
	default:
		return fmt.Sprintf("Control(0x%02X)", uint8(c))
	}
}

// IsValid reports whether c is one of the five ciphering profiles.
func (c Control) IsValid() bool {
	switch c {
	case ControlAuthentication, ControlEncryption, ControlAuthenticatedEncryption,
		ControlGeneralSuite1, ControlGeneralSuite2:
		return true
	}
	return false
}

// Authenticated reports whether the profile carries a tag.
func (c Control) Authenticated() bool {
	return c.IsValid() && c != ControlEncryption
}

// Encrypted reports whether the profile hides the plaintext.
func (c Control) Encrypted() bool {
	return c.IsValid() && c != ControlAuthentication
}

// General reports whether the profile uses the general-glo-ciphering layout.
func (c Control) General() bool {
	return c == ControlGeneralSuite1 || c == ControlGeneralSuite2
}

// Envelope tags.
const (
	TagGloInitiateRequest  = 0x21
	TagGloInitiateResponse = 0x28
	TagGeneralGloCiphering = 0xDB
)

// allowedTag reports whether tag is the layout c requires.
func (c Control) allowedTag(tag byte) bool {
	if c.General() {
		return tag == TagGeneralGloCiphering
	}
	return tag == TagGloInitiateRequest || tag == TagGloInitiateResponse
}
