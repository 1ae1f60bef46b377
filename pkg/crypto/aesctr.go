// AES-CTR implementation for DLMS encryption-only ciphering (security control 0x20).
// This is the counter half of AES-GCM without the GHASH tag, so a frame
// encrypted here decrypts to the same bytes as the GCM ciphertext for the
// same key and IV.
//   - IV length: 12 bytes
//   - Initial counter block: IV || 00000002 (inc32(J0) per NIST 800-38D)

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
)

// AES-CTR constants.
const (
	// AESCTRNonceSize is the IV size in bytes.
	AESCTRNonceSize = AESGCMNonceSize

	// aesCTRBlockSize is the AES block size (always 16 bytes).
	aesCTRBlockSize = 16

	// aesCTRInitialCounter is the first counter value used for payload blocks.
	// Counter 1 is reserved by GCM for tag encryption.
	aesCTRInitialCounter = 2
)

// Errors for AES-CTR operations.
var (
	ErrAESCTRInvalidKeySize   = errors.New("aesctr: invalid key size, must be 16, 24 or 32 bytes")
	ErrAESCTRInvalidNonceSize = errors.New("aesctr: invalid nonce size, must be 12 bytes")
)

// AESCTR represents an AES-CTR cipher instance using the GCM counter layout.
type AESCTR struct {
	block cipher.Block
}

// NewAESCTR creates a new AES-CTR cipher.
func NewAESCTR(key []byte) (*AESCTR, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrAESCTRInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &AESCTR{block: block}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESCTR) NonceSize() int {
	return AESCTRNonceSize
}

// Encrypt encrypts plaintext. Returns ciphertext of the same length.
func (c *AESCTR) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != AESCTRNonceSize {
		return nil, ErrAESCTRInvalidNonceSize
	}

	ciphertext := make([]byte, len(plaintext))
	c.ctrXOR(nonce, ciphertext, plaintext)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext. Returns plaintext of the same length.
func (c *AESCTR) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != AESCTRNonceSize {
		return nil, ErrAESCTRInvalidNonceSize
	}

	plaintext := make([]byte, len(ciphertext))
	c.ctrXOR(nonce, plaintext, ciphertext)
	return plaintext, nil
}

// ctrXOR performs CTR mode encryption/decryption (they are identical operations).
//
// cipher.NewCTR increments the full 128-bit block while GCM increments only
// the low 32 bits. The two agree for any payload shorter than 2^32 blocks,
// which covers every APDU size.
func (c *AESCTR) ctrXOR(nonce []byte, dst, src []byte) {
	if len(src) == 0 {
		return
	}

	var ctr [aesCTRBlockSize]byte
	copy(ctr[:AESCTRNonceSize], nonce)
	binary.BigEndian.PutUint32(ctr[AESCTRNonceSize:], aesCTRInitialCounter)

	stream := cipher.NewCTR(c.block, ctr[:])
	stream.XORKeyStream(dst, src)
}

// AESCTREncrypt is a convenience function for AES-CTR encryption.
func AESCTREncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	ctr, err := NewAESCTR(key)
	if err != nil {
		return nil, err
	}
	return ctr.Encrypt(nonce, plaintext)
}

// AESCTRDecrypt is a convenience function for AES-CTR decryption.
func AESCTRDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	ctr, err := NewAESCTR(key)
	if err != nil {
		return nil, err
	}
	return ctr.Decrypt(nonce, ciphertext)
}
