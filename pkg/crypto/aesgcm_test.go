package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// GCM test vectors from McGrew & Viega, "The Galois/Counter Mode of Operation",
// Appendix B, test cases 1 and 2. The expected tag is truncated to 12 bytes.
var gcmTestVectors = []struct {
	name       string
	key        string
	iv         string
	plaintext  string
	aad        string
	ciphertext string
	tag        string
}{
	{
		name:       "TestCase1_EmptyPlaintext",
		key:        "00000000000000000000000000000000",
		iv:         "000000000000000000000000",
		plaintext:  "",
		ciphertext: "",
		tag:        "58e2fccefa7e3061367f1d57",
	},
	{
		name:       "TestCase2_OneBlock",
		key:        "00000000000000000000000000000000",
		iv:         "000000000000000000000000",
		plaintext:  "00000000000000000000000000000000",
		ciphertext: "0388dace60b6a392f328c2b971b2fe78",
		tag:        "ab6e47d42cec13bdf53a67b2",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

func TestAESGCMVectors(t *testing.T) {
	for _, tc := range gcmTestVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := mustHex(t, tc.key)
			iv := mustHex(t, tc.iv)
			pt := mustHex(t, tc.plaintext)
			aad := mustHex(t, tc.aad)
			want := append(mustHex(t, tc.ciphertext), mustHex(t, tc.tag)...)

			got, err := AESGCMSeal(key, iv, pt, aad)
			if err != nil {
				t.Fatalf("AESGCMSeal() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("AESGCMSeal() = %x, want %x", got, want)
			}

			opened, err := AESGCMOpen(key, iv, got, aad)
			if err != nil {
				t.Fatalf("AESGCMOpen() error = %v", err)
			}
			if !bytes.Equal(opened, pt) {
				t.Errorf("AESGCMOpen() = %x, want %x", opened, pt)
			}
		})
	}
}

func TestNewAESGCM(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		if _, err := NewAESGCM(make([]byte, size)); err != nil {
			t.Errorf("NewAESGCM(%d-byte key) error = %v", size, err)
		}
	}
	for _, size := range []int{0, 15, 17, 33} {
		if _, err := NewAESGCM(make([]byte, size)); !errors.Is(err, ErrAESGCMInvalidKeySize) {
			t.Errorf("NewAESGCM(%d-byte key) error = %v, want %v", size, err, ErrAESGCMInvalidKeySize)
		}
	}
}

func TestAESGCMOpenTampered(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x01}, AESGCMNonceSize)
	aad := []byte{0x30, 0xD0, 0xD1}

	sealed, err := AESGCMSeal(key, iv, []byte("initiate-request"), aad)
	if err != nil {
		t.Fatalf("AESGCMSeal() error = %v", err)
	}

	t.Run("FlippedTag", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0x01
		if _, err := AESGCMOpen(key, iv, bad, aad); !errors.Is(err, ErrAESGCMAuthFailed) {
			t.Errorf("AESGCMOpen() error = %v, want %v", err, ErrAESGCMAuthFailed)
		}
	})

	t.Run("WrongAAD", func(t *testing.T) {
		if _, err := AESGCMOpen(key, iv, sealed, []byte{0x30}); !errors.Is(err, ErrAESGCMAuthFailed) {
			t.Errorf("AESGCMOpen() error = %v, want %v", err, ErrAESGCMAuthFailed)
		}
	})

	t.Run("TooShort", func(t *testing.T) {
		if _, err := AESGCMOpen(key, iv, sealed[:AESGCMTagSize-1], aad); !errors.Is(err, ErrAESGCMCiphertextTooShort) {
			t.Errorf("AESGCMOpen() error = %v, want %v", err, ErrAESGCMCiphertextTooShort)
		}
	})

	t.Run("BadNonce", func(t *testing.T) {
		if _, err := AESGCMOpen(key, iv[:8], sealed, aad); !errors.Is(err, ErrAESGCMInvalidNonceSize) {
			t.Errorf("AESGCMOpen() error = %v, want %v", err, ErrAESGCMInvalidNonceSize)
		}
	})
}

func TestAESGCMAuthenticate(t *testing.T) {
	gcm, err := NewAESGCM(bytes.Repeat([]byte{0x0A}, 16))
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	iv := bytes.Repeat([]byte{0x07}, AESGCMNonceSize)
	aad := []byte("sc || ak || plaintext")

	tag, err := gcm.Authenticate(iv, aad)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if len(tag) != AESGCMTagSize {
		t.Fatalf("len(tag) = %d, want %d", len(tag), AESGCMTagSize)
	}
	if err := gcm.Verify(iv, aad, tag); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	tag[0] ^= 0x80
	if err := gcm.Verify(iv, aad, tag); !errors.Is(err, ErrAESGCMAuthFailed) {
		t.Errorf("Verify(tampered) error = %v, want %v", err, ErrAESGCMAuthFailed)
	}
}
