// IV construction and frame counter seeding for DLMS ciphering.

package crypto

import (
	"encoding/binary"
	"errors"
	"io"
)

// Ciphering constants.
const (
	// SystemTitleSize is the length of a system title in bytes.
	SystemTitleSize = 8

	// FrameCounterSize is the length of the invocation counter in bytes.
	FrameCounterSize = 4
)

// Errors for IV and random operations.
var (
	ErrInvalidSystemTitle = errors.New("nonce: system title longer than 8 bytes")
	ErrNilRandom          = errors.New("nonce: nil random source")
)

// BuildIV constructs the 12-byte GCM IV.
//
// Format: SystemTitle (8 bytes) || FrameCounter (4 bytes BE)
//
// A title shorter than 8 bytes is zero-padded on the right.
func BuildIV(systemTitle []byte, frameCounter uint32) ([]byte, error) {
	if len(systemTitle) > SystemTitleSize {
		return nil, ErrInvalidSystemTitle
	}

	iv := make([]byte, AESGCMNonceSize)
	copy(iv[:SystemTitleSize], systemTitle)
	binary.BigEndian.PutUint32(iv[SystemTitleSize:], frameCounter)
	return iv, nil
}

// SeedFrameCounter draws a random initial frame counter from r.
func SeedFrameCounter(r io.Reader) (uint32, error) {
	if r == nil {
		return 0, ErrNilRandom
	}
	var b [FrameCounterSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Challenge alphabet bounds. Generated challenges are printable bytes
// in the range '0'..'y'.
const (
	challengeBase  = 0x30
	challengeRange = 74
)

// RandomChallenge returns n printable random bytes drawn from r.
func RandomChallenge(r io.Reader, n int) ([]byte, error) {
	if r == nil {
		return nil, ErrNilRandom
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	for i := range b {
		b[i] = b[i]%challengeRange + challengeBase
	}
	return b, nil
}
