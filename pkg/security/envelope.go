package security

import (
	"errors"
	"fmt"

	"github.com/backkem/dlms/pkg/axdr"
	"github.com/backkem/dlms/pkg/crypto"
	"golang.org/x/crypto/cryptobyte"
)

// TagSize is the authentication tag length carried by authenticated profiles.
const TagSize = crypto.AESGCMTagSize

// headerSize is SC (1) + FC (4).
const headerSize = 1 + crypto.FrameCounterSize

// Keys is the key material used to protect an envelope.
type Keys struct {
	// Encryption is the block cipher key (global unicast or dedicated key).
	Encryption []byte

	// Authentication is mixed into the AAD of authenticated profiles.
	Authentication []byte
}

// Envelope is a parsed ciphered payload. Body aliases the input.
type Envelope struct {
	Tag          byte
	SystemTitle  []byte
	Control      Control
	FrameCounter uint32
	Body         []byte
}

// IsCiphered reports whether b starts with an envelope tag.
func IsCiphered(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch b[0] {
	case TagGloInitiateRequest, TagGloInitiateResponse, TagGeneralGloCiphering:
		return true
	}
	return false
}

// IsCipheredRequest reports whether b starts with an envelope tag a client
// may send: glo-initiate-request or general-glo-ciphering.
func IsCipheredRequest(b []byte) bool {
	return len(b) > 0 && (b[0] == TagGloInitiateRequest || b[0] == TagGeneralGloCiphering)
}

// ParseRequest is Parse restricted to the envelopes a client may send.
func ParseRequest(b []byte) (Envelope, error) {
	if IsCiphered(b) && !IsCipheredRequest(b) {
		return Envelope{Tag: b[0]}, ErrNotRequest
	}
	return Parse(b)
}

// Parse decodes an envelope. The declared length must span exactly the
// remaining input, and the security control must match the layout.
func Parse(b []byte) (Envelope, error) {
	var env Envelope
	s := cryptobyte.String(b)

	if !s.ReadUint8(&env.Tag) {
		return env, ErrTruncated
	}
	switch env.Tag {
	case TagGloInitiateRequest, TagGloInitiateResponse:
	case TagGeneralGloCiphering:
		var title cryptobyte.String
		if !s.ReadUint8LengthPrefixed(&title) {
			return env, ErrTruncated
		}
		if len(title) != crypto.SystemTitleSize {
			return env, ErrInvalidSystemTitle
		}
		env.SystemTitle = title
	default:
		return env, ErrNotCiphered
	}

	length, ok := axdr.ReadLength(&s)
	if !ok {
		return env, ErrTruncated
	}
	if length != len(s) {
		return env, ErrLengthMismatch
	}

	var sc uint8
	if !s.ReadUint8(&sc) || !s.ReadUint32(&env.FrameCounter) {
		return env, ErrTruncated
	}
	env.Control = Control(sc)
	if !env.Control.IsValid() {
		return env, fmt.Errorf("%w: 0x%02X", ErrUnknownControl, sc)
	}
	if !env.Control.allowedTag(env.Tag) {
		return env, ErrLayoutMismatch
	}
	if env.Control.Authenticated() && len(s) < TagSize {
		return env, ErrTruncated
	}
	env.Body = s
	return env, nil
}

// Open verifies and decrypts the envelope body. The IV is systemTitle ||
// FrameCounter; for requests the system title is the client's calling title.
func (e Envelope) Open(keys Keys, systemTitle []byte) ([]byte, error) {
	iv, err := crypto.BuildIV(systemTitle, e.FrameCounter)
	if err != nil {
		return nil, err
	}
	return unprotect(e.Control, keys, iv, e.Body)
}

// Seal builds an envelope around plaintext.
//
// tag selects the layout: 0x21 or 0x28 for the glo layout, 0xDB for the
// general layout (which requires an 8-byte systemTitle and a general control).
func Seal(tag byte, control Control, keys Keys, systemTitle []byte, frameCounter uint32, plaintext []byte) ([]byte, error) {
	if !control.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownControl, uint8(control))
	}
	if !control.allowedTag(tag) {
		return nil, ErrLayoutMismatch
	}
	if tag == TagGeneralGloCiphering && len(systemTitle) != crypto.SystemTitleSize {
		return nil, ErrInvalidSystemTitle
	}

	iv, err := crypto.BuildIV(systemTitle, frameCounter)
	if err != nil {
		return nil, err
	}
	body, err := protect(control, keys, iv, plaintext)
	if err != nil {
		return nil, err
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(tag)
	if tag == TagGeneralGloCiphering {
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(systemTitle)
		})
	}
	axdr.AddLength(b, headerSize+len(body))
	b.AddUint8(uint8(control))
	b.AddUint32(frameCounter)
	b.AddBytes(body)
	return b.Bytes()
}

func aad(control Control, keys Keys, extra []byte) []byte {
	a := make([]byte, 0, 1+len(keys.Authentication)+len(extra))
	a = append(a, byte(control))
	a = append(a, keys.Authentication...)
	return append(a, extra...)
}

func protect(control Control, keys Keys, iv, plaintext []byte) ([]byte, error) {
	if len(keys.Encryption) == 0 {
		return nil, ErrMissingKey
	}

	switch control {
	case ControlAuthentication:
		gcm, err := crypto.NewAESGCM(keys.Encryption)
		if err != nil {
			return nil, err
		}
		tag, err := gcm.Authenticate(iv, aad(control, keys, plaintext))
		if err != nil {
			return nil, err
		}
		return append(append([]byte(nil), plaintext...), tag...), nil

	case ControlEncryption:
		return crypto.AESCTREncrypt(keys.Encryption, iv, plaintext)

	default:
		return crypto.AESGCMSeal(keys.Encryption, iv, plaintext, aad(control, keys, nil))
	}
}

func unprotect(control Control, keys Keys, iv, body []byte) ([]byte, error) {
	if len(keys.Encryption) == 0 {
		return nil, ErrMissingKey
	}

	switch control {
	case ControlAuthentication:
		if len(body) < TagSize {
			return nil, ErrTruncated
		}
		plaintext := body[:len(body)-TagSize]
		gcm, err := crypto.NewAESGCM(keys.Encryption)
		if err != nil {
			return nil, err
		}
		if err := gcm.Verify(iv, aad(control, keys, plaintext), body[len(body)-TagSize:]); err != nil {
			return nil, ErrAuthFailed
		}
		return append([]byte(nil), plaintext...), nil

	case ControlEncryption:
		return crypto.AESCTRDecrypt(keys.Encryption, iv, body)

	case ControlAuthenticatedEncryption, ControlGeneralSuite1, ControlGeneralSuite2:
		plaintext, err := crypto.AESGCMOpen(keys.Encryption, iv, body, aad(control, keys, nil))
		if errors.Is(err, crypto.ErrAESGCMAuthFailed) {
			return nil, ErrAuthFailed
		}
		return plaintext, err

	default:
		return nil, ErrUnknownControl
	}
}
