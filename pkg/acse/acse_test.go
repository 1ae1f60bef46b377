package acse

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/dlms/pkg/oid"
	"github.com/google/go-cmp/cmp"
)

// LN context, no security, initiate-request with conformance 007E1F and
// max PDU 0x04B0.
var aarqLowest = []byte{
	0x60, 0x1D,
	0xA1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, 0x01,
	0xBE, 0x10, 0x04, 0x0E,
	0x01, 0x00, 0x00, 0x00, 0x06, 0x5F, 0x1F, 0x04, 0x00, 0x00, 0x7E, 0x1F, 0x04, 0xB0,
}

var initiateLowest = aarqLowest[17:]

func TestDecodeAARQ(t *testing.T) {
	req, err := DecodeAARQ(aarqLowest)
	if err != nil {
		t.Fatalf("DecodeAARQ() error = %v", err)
	}

	ctx, ok := req.ApplicationContextOID()
	if !ok {
		t.Fatal("ApplicationContextOID() not found")
	}
	if ctx != oid.LogicalNameNoCiphering.OID() {
		t.Errorf("ApplicationContextOID() = %v, want %v", ctx, oid.LogicalNameNoCiphering.OID())
	}
	if got := req.MechanismID(); got != oid.MechanismLowest {
		t.Errorf("MechanismID() = %v, want %v", got, oid.MechanismLowest)
	}
	if !req.ProtocolVersionValid() {
		t.Error("ProtocolVersionValid() = false for absent element")
	}
	if req.AuthenticationRequired() {
		t.Error("AuthenticationRequired() = true")
	}
	ui, ok := req.InitiateRequest()
	if !ok || !bytes.Equal(ui, initiateLowest) {
		t.Errorf("InitiateRequest() = %x, %v, want %x", ui, ok, initiateLowest)
	}
	if _, ok := req.CallingTitle(); ok {
		t.Error("CallingTitle() present")
	}
}

func TestDecodeAARQMalformed(t *testing.T) {
	lengthShort := append([]byte(nil), aarqLowest...)
	lengthShort[1] = 0x1C

	lengthLong := append([]byte(nil), aarqLowest...)
	lengthLong[1] = 0x1E

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"Empty", nil, ErrTruncated},
		{"WrongTag", []byte{0x61, 0x00}, ErrUnexpectedTag},
		{"MissingLength", []byte{0x60}, ErrTruncated},
		{"OuterLengthShort", lengthShort, ErrLengthMismatch},
		{"OuterLengthLong", lengthLong, ErrLengthMismatch},
		{"TruncatedElement", []byte{0x60, 0x03, 0xA1, 0x09, 0x06}, ErrTruncated},
		{"MissingElementLength", []byte{0x60, 0x01, 0xA1}, ErrTruncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := DecodeAARQ(tc.input)
			if !errors.Is(err, tc.want) {
				t.Errorf("DecodeAARQ() error = %v, want %v", err, tc.want)
			}
			if diff := cmp.Diff(AARQ{}, req); diff != "" {
				t.Errorf("DecodeAARQ() returned fields (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeAARQSkipsUnknown(t *testing.T) {
	input := []byte{
		0x60, 0x0C,
		0xC5, 0x01, 0x00,
		0x8B, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x02, 0x05,
	}
	req, err := DecodeAARQ(input)
	if err != nil {
		t.Fatalf("DecodeAARQ() error = %v", err)
	}
	if got := req.MechanismID(); got != oid.MechanismHighGMAC {
		t.Errorf("MechanismID() = %v, want %v", got, oid.MechanismHighGMAC)
	}
	mech, ok := req.MechanismOID()
	if !ok || !mech.IsDLMS(oid.ContextMechanism) {
		t.Errorf("MechanismOID() = %v, %v", mech, ok)
	}
	if req.ApplicationContext != nil {
		t.Error("ApplicationContext present")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	title := []byte("ABCDEFGH")
	password := []byte("12345678")

	r := &Request{
		ProtocolVersion:    true,
		ApplicationContext: oid.LogicalNameNoCiphering,
		Mechanism:          oid.MechanismLow,
		CallingTitle:       title,
		AuthValue:          password,
		UserInformation:    initiateLowest,
	}
	b, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if b[0] != TagAARQ {
		t.Fatalf("tag = 0x%02X, want 0x60", b[0])
	}

	req, err := DecodeAARQ(b)
	if err != nil {
		t.Fatalf("DecodeAARQ() error = %v", err)
	}
	if !bytes.Equal(req.ProtocolVersion, []byte{0x02, 0x84}) || !req.ProtocolVersionValid() {
		t.Errorf("ProtocolVersion = %x", req.ProtocolVersion)
	}
	if got := req.MechanismID(); got != oid.MechanismLow {
		t.Errorf("MechanismID() = %v, want %v", got, oid.MechanismLow)
	}
	if !req.AuthenticationRequired() {
		t.Error("AuthenticationRequired() = false")
	}
	if got, ok := req.AuthValue(); !ok || !bytes.Equal(got, password) {
		t.Errorf("AuthValue() = %q, %v, want %q", got, ok, password)
	}
	if len(req.CallingAuthValue) > MaxPasswordElement {
		t.Errorf("auth element length %d exceeds %d", len(req.CallingAuthValue), MaxPasswordElement)
	}
	if got, ok := req.CallingTitle(); !ok || !bytes.Equal(got, title) {
		t.Errorf("CallingTitle() = %q, %v, want %q", got, ok, title)
	}
	if got, ok := req.InitiateRequest(); !ok || !bytes.Equal(got, initiateLowest) {
		t.Errorf("InitiateRequest() = %x, %v", got, ok)
	}
}

func TestRequestLowestOmitsAuthentication(t *testing.T) {
	r := &Request{ApplicationContext: oid.LogicalNameNoCiphering, UserInformation: initiateLowest}
	b, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Equal(b, aarqLowest) {
		t.Errorf("Marshal() = %x, want %x", b, aarqLowest)
	}
}

func TestResponseMarshal(t *testing.T) {
	ui := []byte{0x08, 0x00, 0x06, 0x5F, 0x1F, 0x04, 0x00, 0x00, 0x10, 0x11, 0x01, 0x00, 0x00, 0x07}
	r := &Response{
		ApplicationContext: oid.LogicalNameNoCiphering.OID(),
		Result:             ResultAccepted,
		Diagnostic:         DiagnosticSuccess,
		UserInformation:    ui,
	}
	got, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := append([]byte{
		0x61, 0x29,
		0xA1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, 0x01,
		0xA2, 0x03, 0x02, 0x01, 0x00,
		0xA3, 0x05, 0xA1, 0x03, 0x02, 0x01, 0x00,
		0xBE, 0x10, 0x04, 0x0E,
	}, ui...)
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal() =\n%x\nwant\n%x", got, want)
	}

	buf := make([]byte, len(want))
	n, err := r.Encode(buf)
	if err != nil || n != len(want) {
		t.Errorf("Encode() = %d, %v, want %d", n, err, len(want))
	}
	if _, err := r.Encode(buf[:10]); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Encode(short) error = %v, want %v", err, ErrBufferTooSmall)
	}
}

func TestResponseProviderDiagnostic(t *testing.T) {
	r := &Response{
		EchoProtocolVersion: true,
		ApplicationContext:  oid.LogicalNameNoCiphering.OID(),
		Result:              ResultRejectedPermanent,
		Source:              SourceServiceProvider,
		Diagnostic:          DiagnosticNoReason,
		UserInformation:     []byte{0x0E, 0x01, 0x06, 0x00},
	}
	got, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := []byte{
		0x61, 0x23,
		0x80, 0x02, 0x07, 0x80,
		0xA1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, 0x01,
		0xA2, 0x03, 0x02, 0x01, 0x01,
		0xA3, 0x05, 0xA2, 0x03, 0x02, 0x01, 0x02,
		0xBE, 0x06, 0x04, 0x04, 0x0E, 0x01, 0x06, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal() =\n%x\nwant\n%x", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	want := &Response{
		EchoProtocolVersion: true,
		ApplicationContext:  oid.LogicalNameWithCiphering.OID(),
		Result:              ResultAccepted,
		Source:              SourceServiceUser,
		Diagnostic:          DiagnosticHighLevel,
		RespondingTitle:     []byte("SRVTITLE"),
		Mechanism:           oid.MechanismHighGMAC,
		StoC:                []byte("0123456789ABCDEF"),
		UserInformation:     []byte{0x28, 0x03, 0x30, 0x00, 0x00},
	}
	b, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := ParseResponse(b)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseResponse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseErrors(t *testing.T) {
	if _, err := ParseResponse(aarqLowest); !errors.Is(err, ErrUnexpectedTag) {
		t.Errorf("ParseResponse(AARQ) error = %v, want %v", err, ErrUnexpectedTag)
	}
	if _, err := ParseResponse([]byte{0x61, 0x00}); !errors.Is(err, ErrMissingElement) {
		t.Errorf("ParseResponse(empty AARE) error = %v, want %v", err, ErrMissingElement)
	}
}

func TestRelease(t *testing.T) {
	buf := make([]byte, 8)
	if n := EncodeRLRE(buf); n != RLRESize || !bytes.Equal(buf[:n], []byte{0x63, 0x00, 0x00}) {
		t.Errorf("EncodeRLRE() = %d (%x)", n, buf[:n])
	}
	if n := EncodeRLRE(buf[:2]); n != 0 {
		t.Errorf("EncodeRLRE(short) = %d, want 0", n)
	}
	if !IsRLRE(buf) {
		t.Error("IsRLRE() = false")
	}
	if Classify(RLRQ()) != KindRLRQ {
		t.Errorf("Classify(RLRQ()) = %v", Classify(RLRQ()))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		input []byte
		want  Kind
	}{
		{nil, KindUnknown},
		{[]byte{0x60}, KindAARQ},
		{[]byte{0x62, 0x00}, KindRLRQ},
		{[]byte{0xC0, 0x01}, KindData},
	}
	for _, tc := range tests {
		if got := Classify(tc.input); got != tc.want {
			t.Errorf("Classify(%x) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
