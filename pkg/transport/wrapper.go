package transport

import (
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// IEC 62056-47 wrapper constants.
const (
	// WrapperVersion is the only wrapper protocol version.
	WrapperVersion = 0x0001

	// HeaderSize is version (2) + source wPort (2) + destination wPort (2) +
	// length (2).
	HeaderSize = 8

	// MaxAPDUSize is the largest APDU the length field can describe.
	MaxAPDUSize = 0xFFFF

	// MaxFrameSize is the largest wrapped frame.
	MaxFrameSize = HeaderSize + MaxAPDUSize

	// DefaultPort is the IANA registered DLMS/COSEM port for TCP and UDP.
	DefaultPort = 4059
)

// PublicClient is the wPort of the public client.
const PublicClient uint16 = 0x0010

// Frame is one wrapped APDU.
//
// Format:
//
//	0x0001 | source wPort | destination wPort | length | APDU
type Frame struct {
	Source      uint16
	Destination uint16
	APDU        []byte
}

// Size returns the wire size of the frame.
func (f Frame) Size() int {
	return HeaderSize + len(f.APDU)
}

// Reply returns a frame carrying apdu back to the sender of f.
func (f Frame) Reply(apdu []byte) Frame {
	return Frame{Source: f.Destination, Destination: f.Source, APDU: apdu}
}

// String returns a short description of the frame.
func (f Frame) String() string {
	return fmt.Sprintf("wPort %d->%d (%d bytes)", f.Source, f.Destination, len(f.APDU))
}

// Marshal encodes the frame.
func (f Frame) Marshal() ([]byte, error) {
	if len(f.APDU) > MaxAPDUSize {
		return nil, ErrMessageTooLarge
	}
	b := cryptobyte.NewBuilder(make([]byte, 0, f.Size()))
	f.addHeader(b)
	b.AddBytes(f.APDU)
	return b.Bytes()
}

func (f Frame) addHeader(b *cryptobyte.Builder) {
	b.AddUint16(WrapperVersion)
	b.AddUint16(f.Source)
	b.AddUint16(f.Destination)
	b.AddUint16(uint16(len(f.APDU)))
}

// parseHeader decodes a wrapper header and returns the frame with the declared
// APDU length.
func parseHeader(h []byte) (Frame, int, error) {
	s := cryptobyte.String(h)
	var version, length uint16
	var f Frame
	if !s.ReadUint16(&version) || !s.ReadUint16(&f.Source) ||
		!s.ReadUint16(&f.Destination) || !s.ReadUint16(&length) {
		return Frame{}, 0, ErrTruncated
	}
	if version != WrapperVersion {
		return Frame{}, 0, fmt.Errorf("%w: 0x%04X", ErrUnsupportedVersion, version)
	}
	if length == 0 {
		return Frame{}, 0, ErrEmptyAPDU
	}
	return f, int(length), nil
}

// ParseFrame decodes a datagram holding exactly one wrapped APDU. The APDU
// aliases b.
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, ErrTruncated
	}
	f, length, err := parseHeader(b[:HeaderSize])
	if err != nil {
		return Frame{}, err
	}
	switch body := b[HeaderSize:]; {
	case len(body) < length:
		return Frame{}, ErrTruncated
	case len(body) > length:
		return Frame{}, ErrLengthMismatch
	default:
		f.APDU = body
	}
	return f, nil
}

// StreamWriter writes wrapped frames to a byte stream.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a new stream writer.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame writes the header and then the APDU.
func (sw *StreamWriter) WriteFrame(f Frame) error {
	if len(f.APDU) > MaxAPDUSize {
		return ErrMessageTooLarge
	}
	header := cryptobyte.NewBuilder(make([]byte, 0, HeaderSize))
	f.addHeader(header)
	if _, err := sw.w.Write(header.BytesOrPanic()); err != nil {
		return err
	}
	_, err := sw.w.Write(f.APDU)
	return err
}

// StreamReader reads wrapped frames from a byte stream.
type StreamReader struct {
	r io.Reader
}

// NewStreamReader creates a new stream reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r}
}

// ReadFrame reads the next frame. io.EOF is returned unwrapped when the
// stream ends between frames.
func (sr *StreamReader) ReadFrame() (Frame, error) {
	var h [HeaderSize]byte
	if _, err := io.ReadFull(sr.r, h[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	f, length, err := parseHeader(h[:])
	if err != nil {
		return Frame{}, err
	}
	f.APDU = make([]byte, length)
	if _, err := io.ReadFull(sr.r, f.APDU); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return f, nil
}
