package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameMarshal(t *testing.T) {
	f := Frame{Source: 0x0010, Destination: 0x0001, APDU: []byte{0x62, 0x00}}
	got, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := []byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x01, 0x00, 0x02, 0x62, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal() = %x, want %x", got, want)
	}

	parsed, err := ParseFrame(got)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if parsed.Source != f.Source || parsed.Destination != f.Destination || !bytes.Equal(parsed.APDU, f.APDU) {
		t.Errorf("ParseFrame() = %v, want %v", parsed, f)
	}

	reply := parsed.Reply([]byte{0x63, 0x00, 0x00})
	if reply.Source != 0x0001 || reply.Destination != 0x0010 {
		t.Errorf("Reply() = %v", reply)
	}
}

func TestFrameMarshalTooLarge(t *testing.T) {
	f := Frame{APDU: make([]byte, MaxAPDUSize+1)}
	if _, err := f.Marshal(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Marshal() error = %v, want %v", err, ErrMessageTooLarge)
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"Empty", nil, ErrTruncated},
		{"ShortHeader", []byte{0x00, 0x01, 0x00}, ErrTruncated},
		{"Version", []byte{0x00, 0x02, 0x00, 0x10, 0x00, 0x01, 0x00, 0x01, 0x60}, ErrUnsupportedVersion},
		{"NoAPDU", []byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x01, 0x00, 0x00}, ErrEmptyAPDU},
		{"ShortAPDU", []byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x01, 0x00, 0x03, 0x60}, ErrTruncated},
		{"TrailingBytes", []byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x01, 0x00, 0x01, 0x60, 0x00}, ErrLengthMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseFrame(tc.input); !errors.Is(err, tc.want) {
				t.Errorf("ParseFrame() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	frames := []Frame{
		{Source: 0x10, Destination: 0x01, APDU: []byte{0x60, 0x00}},
		{Source: 0x20, Destination: 0x02, APDU: bytes.Repeat([]byte{0xC0}, 300)},
	}
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	r := NewStreamReader(&buf)
	for i, want := range frames {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame(%d) error = %v", i, err)
		}
		if got.Source != want.Source || got.Destination != want.Destination || !bytes.Equal(got.APDU, want.APDU) {
			t.Errorf("ReadFrame(%d) = %v, want %v", i, got, want)
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestStreamTruncated(t *testing.T) {
	r := NewStreamReader(bytes.NewReader([]byte{0x00, 0x01, 0x00, 0x10, 0x00, 0x01, 0x00, 0x04, 0x60}))
	if _, err := r.ReadFrame(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadFrame() error = %v, want %v", err, ErrTruncated)
	}

	r = NewStreamReader(bytes.NewReader([]byte{0x00, 0x01, 0x00}))
	if _, err := r.ReadFrame(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadFrame(short header) error = %v, want %v", err, ErrTruncated)
	}
}
