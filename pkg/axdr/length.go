// Package axdr implements the A-XDR length prefix used by DLMS/COSEM APDUs
// (IEC 61334-6). Lengths below 0x80 take one octet; longer lengths are encoded
// as 0x80|n followed by n big-endian octets.
package axdr

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// MaxLengthOctets is the largest number of subsequent length octets accepted.
// Four octets cover every length representable by an int on 32-bit targets.
const MaxLengthOctets = 4

var (
	// ErrUnexpectedEOF is returned when the input ends inside a length field.
	ErrUnexpectedEOF = errors.New("axdr: unexpected end of input")

	// ErrLengthTooLong is returned when the length uses more than MaxLengthOctets.
	ErrLengthTooLong = errors.New("axdr: length field too long")

	// ErrNegativeLength is returned when encoding a negative length.
	ErrNegativeLength = errors.New("axdr: negative length")
)

// DecodeLength decodes the length prefix at the start of b.
// Returns the decoded length and the number of octets consumed.
func DecodeLength(b []byte) (length, n int, err error) {
	if len(b) == 0 {
		return 0, 0, ErrUnexpectedEOF
	}
	first := b[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}

	count := int(first & 0x7F)
	if count == 0 || count > MaxLengthOctets {
		return 0, 0, ErrLengthTooLong
	}
	if len(b) < 1+count {
		return 0, 0, ErrUnexpectedEOF
	}
	var v uint32
	for _, c := range b[1 : 1+count] {
		v = v<<8 | uint32(c)
	}
	if uint64(v) > uint64(^uint(0)>>1) {
		return 0, 0, ErrLengthTooLong
	}
	return int(v), 1 + count, nil
}

// ReadLength reads a length prefix from a cryptobyte cursor.
func ReadLength(s *cryptobyte.String) (int, bool) {
	length, n, err := DecodeLength(*s)
	if err != nil {
		return 0, false
	}
	if !s.Skip(n) {
		return 0, false
	}
	return length, true
}

// EncodedSize returns the number of octets AppendLength writes for length.
func EncodedSize(length int) int {
	if length < 0x80 {
		return 1
	}
	n := 1
	for v := uint32(length); v > 0; v >>= 8 {
		n++
	}
	return n
}

// AppendLength appends the A-XDR encoding of length to dst.
func AppendLength(dst []byte, length int) ([]byte, error) {
	if length < 0 {
		return dst, ErrNegativeLength
	}
	if uint64(length) > 0xFFFFFFFF {
		return dst, ErrLengthTooLong
	}
	if length < 0x80 {
		return append(dst, byte(length)), nil
	}

	count := EncodedSize(length) - 1
	dst = append(dst, 0x80|byte(count))
	for i := count - 1; i >= 0; i-- {
		dst = append(dst, byte(length>>(8*i)))
	}
	return dst, nil
}

// AddLength writes the A-XDR encoding of length to a cryptobyte builder.
func AddLength(b *cryptobyte.Builder, length int) {
	enc, err := AppendLength(nil, length)
	if err != nil {
		b.SetError(err)
		return
	}
	b.AddBytes(enc)
}
