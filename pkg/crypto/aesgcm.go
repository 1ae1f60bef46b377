// AES-GCM implementation for DLMS/COSEM security suites.
// Security suites 0, 1 and 2 (IEC 62056-5-3 Section 9.2.3) use AES-GCM with:
//   - Key length: 128 or 256 bits (16 or 32 bytes; 24 accepted for completeness)
//   - IV length: 96 bits (system title || invocation counter)
//   - Authentication tag length: 96 bits (12 bytes)

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

// AES-GCM constants for DLMS ciphering.
const (
	// AESGCMNonceSize is the IV length in bytes (system title 8 + frame counter 4).
	AESGCMNonceSize = 12

	// AESGCMTagSize is the authentication tag length in bytes.
	// DLMS truncates the GCM tag to 96 bits.
	AESGCMTagSize = 12
)

// Errors
var (
	ErrAESGCMInvalidKeySize     = errors.New("aesgcm: invalid key size, must be 16, 24 or 32 bytes")
	ErrAESGCMInvalidNonceSize   = errors.New("aesgcm: invalid nonce size, must be 12 bytes")
	ErrAESGCMCiphertextTooShort = errors.New("aesgcm: ciphertext too short")
	ErrAESGCMAuthFailed         = errors.New("aesgcm: message authentication failed")
)

// AESGCM represents an AES-GCM cipher instance with the DLMS tag length.
type AESGCM struct {
	block cipher.Block
	aead  cipher.AEAD
}

// NewAESGCM creates a new AES-GCM cipher with a 12-byte tag.
// The key may be 16, 24 or 32 bytes.
func NewAESGCM(key []byte) (*AESGCM, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrAESGCMInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCMWithTagSize(block, AESGCMTagSize)
	if err != nil {
		return nil, err
	}

	return &AESGCM{block: block, aead: aead}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESGCM) NonceSize() int {
	return AESGCMNonceSize
}

// Overhead returns the tag size appended by Seal.
func (c *AESGCM) Overhead() int {
	return AESGCMTagSize
}

// Seal encrypts and authenticates plaintext.
//
// Parameters:
//   - nonce: 12-byte IV
//   - plaintext: data to encrypt
//   - aad: additional authenticated data
//
// Returns ciphertext || tag (len(plaintext) + 12 bytes).
func (c *AESGCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, ErrAESGCMInvalidNonceSize
	}
	return c.aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext || tag.
//
// Returns ErrAESGCMAuthFailed if the tag does not verify.
func (c *AESGCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, ErrAESGCMInvalidNonceSize
	}
	if len(ciphertext) < AESGCMTagSize {
		return nil, ErrAESGCMCiphertextTooShort
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAESGCMAuthFailed
	}
	return plaintext, nil
}

// Authenticate computes the GMAC tag over aad with an empty plaintext.
// This is the authentication-only mode (security control 0x10).
func (c *AESGCM) Authenticate(nonce, aad []byte) ([]byte, error) {
	return c.Seal(nonce, nil, aad)
}

// Verify checks a GMAC tag produced by Authenticate.
func (c *AESGCM) Verify(nonce, aad, tag []byte) error {
	expected, err := c.Authenticate(nonce, aad)
	if err != nil {
		return err
	}
	if len(tag) != AESGCMTagSize || subtle.ConstantTimeCompare(expected, tag) != 1 {
		return ErrAESGCMAuthFailed
	}
	return nil
}

// AESGCMSeal is a convenience function for one-shot AES-GCM encryption.
func AESGCMSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, plaintext, aad)
}

// AESGCMOpen is a convenience function for one-shot AES-GCM decryption.
func AESGCMOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nonce, ciphertext, aad)
}
