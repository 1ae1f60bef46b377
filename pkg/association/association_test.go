package association

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/backkem/dlms/pkg/acse"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/oid"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/security"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/google/go-cmp/cmp"
)

const testConformance xdlms.Conformance = 0x001011

var (
	testSession = Session{LogicalDevice: 0x0001, ID: 7}

	testPassword    = []byte("12345678")
	testLocalTitle  = []byte("SRVTITLE")
	testClientTitle = []byte("CLIENT01")
	testCtoS        = []byte("K56iVagY8ogmHsTm")

	testEncryptionKey = []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}
	testAuthenticationKey = []byte{
		0xD0, 0xD1, 0xD2, 0xD3, 0xD4, 0xD5, 0xD6, 0xD7,
		0xD8, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE, 0xDF,
	}
	testKeys = security.Keys{Encryption: testEncryptionKey, Authentication: testAuthenticationKey}
)

type testServer struct {
	d     *Dispatcher
	store *keys.MemoryStore
}

func newTestServer(t *testing.T, capacity int, handler ApplicationHandler) *testServer {
	t.Helper()

	reg, err := registry.New(registry.Descriptor{LogicalDevice: 0x0001, Conformance: testConformance, Suit: 1})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}

	store := keys.NewMemoryStore()
	for _, v := range []struct {
		kind  keys.Kind
		value []byte
	}{
		{keys.KindPassword, testPassword},
		{keys.KindLocalTitle, testLocalTitle},
		{keys.KindEncryption, testEncryptionKey},
		{keys.KindAuthentication, testAuthenticationKey},
	} {
		if err := store.SetDevice(v.kind, 0x0001, v.value); err != nil {
			t.Fatalf("SetDevice(%v) error = %v", v.kind, err)
		}
	}

	d, err := NewDispatcher(Config{
		Registry: reg,
		Keys:     keys.NewLoader(store, nil),
		Handler:  handler,
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return &testServer{d: d, store: store}
}

func initiateRequest(t *testing.T, version uint8, conformance xdlms.Conformance, maxPDU uint16) []byte {
	t.Helper()
	b, err := xdlms.AppendInitiateRequest(nil, xdlms.InitiateRequest{
		ResponseAllowed:     true,
		ProposedVersion:     version,
		ProposedConformance: conformance,
		ClientMaxPDU:        maxPDU,
	})
	if err != nil {
		t.Fatalf("AppendInitiateRequest() error = %v", err)
	}
	return b
}

func encodeAARQ(t *testing.T, r acse.Request) []byte {
	t.Helper()
	b, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return b
}

func lowestAARQ(t *testing.T) []byte {
	return encodeAARQ(t, acse.Request{
		ApplicationContext: oid.LogicalNameNoCiphering,
		UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
	})
}

func lowAARQ(t *testing.T, password []byte) []byte {
	return encodeAARQ(t, acse.Request{
		ApplicationContext: oid.LogicalNameNoCiphering,
		Mechanism:          oid.MechanismLow,
		AuthValue:          password,
		UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
	})
}

func cipheredInitiate(t *testing.T) []byte {
	t.Helper()
	sealed, err := security.Seal(security.TagGloInitiateRequest, security.ControlAuthenticatedEncryption,
		testKeys, testClientTitle, 0x00000001, initiateRequest(t, 6, testConformance, 0x0100))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	return sealed
}

func highAARQ(t *testing.T, initiate []byte) []byte {
	return encodeAARQ(t, acse.Request{
		ProtocolVersion:    true,
		ApplicationContext: oid.LogicalNameWithCiphering,
		Mechanism:          oid.MechanismHighGMAC,
		CallingTitle:       testClientTitle,
		AuthValue:          testCtoS,
		UserInformation:    initiate,
	})
}

func (s *testServer) dispatch(t *testing.T, sess Session, apdu []byte) (Result, []byte) {
	t.Helper()
	out := make([]byte, 512)
	res := s.d.Dispatch(sess, apdu, out)
	return res, out[:res.N]
}

func (s *testServer) associate(t *testing.T, sess Session, apdu []byte) *acse.Response {
	t.Helper()
	res, out := s.dispatch(t, sess, apdu)
	if res.N == 0 {
		t.Fatal("Dispatch(AARQ) returned no response")
	}
	resp, err := acse.ParseResponse(out)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	return resp
}

func TestAssociateLowest(t *testing.T) {
	s := newTestServer(t, 0, nil)

	resp := s.associate(t, testSession, lowestAARQ(t))
	if resp.Result != acse.ResultAccepted {
		t.Errorf("Result = %v, want %v", resp.Result, acse.ResultAccepted)
	}
	if resp.Diagnostic != acse.DiagnosticSuccess {
		t.Errorf("Diagnostic = %v, want %v", resp.Diagnostic, acse.DiagnosticSuccess)
	}
	if resp.ApplicationContext != oid.LogicalNameNoCiphering.OID() {
		t.Errorf("ApplicationContext = %v", resp.ApplicationContext)
	}
	if resp.RespondingTitle != nil || resp.StoC != nil {
		t.Errorf("unexpected authentication elements: title %x, StoC %x", resp.RespondingTitle, resp.StoC)
	}
	want := xdlms.AppendInitiateResponse(nil, xdlms.InitiateResponse{Conformance: testConformance, ServerMaxPDU: 0x0100})
	if !bytes.Equal(resp.UserInformation, want) {
		t.Errorf("UserInformation = %x, want %x", resp.UserInformation, want)
	}

	status, level := s.d.Status(testSession)
	if status != StatusAssociated || level != AccessLowest {
		t.Errorf("Status() = %v, %v, want %v, %v", status, level, StatusAssociated, AccessLowest)
	}
}

func TestAssociateLowestRejections(t *testing.T) {
	tests := []struct {
		name       string
		request    acse.Request
		diagnostic acse.Diagnostic
		marker     xdlms.InitiateError
	}{
		{
			name: "VersionTooLow",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameNoCiphering,
				UserInformation:    initiateRequest(t, 5, testConformance, 0x0100),
			},
			diagnostic: acse.DiagnosticContextName,
			marker:     xdlms.InitiateErrorVersionTooLow,
		},
		{
			name: "ConformanceShortfall",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameNoCiphering,
				UserInformation:    initiateRequest(t, 6, 0x000010, 0x0100),
			},
			diagnostic: acse.DiagnosticNoReason,
			marker:     xdlms.InitiateErrorIncompatibleConformance,
		},
		{
			name: "PDUTooShort",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameNoCiphering,
				UserInformation:    initiateRequest(t, 6, testConformance, 0x000B),
			},
			diagnostic: acse.DiagnosticContextName,
			marker:     xdlms.InitiateErrorPDUSizeTooShort,
		},
		{
			name: "CipheredContext",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameWithCiphering,
				UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
			},
			diagnostic: acse.DiagnosticContextName,
			marker:     xdlms.InitiateErrorOther,
		},
		{
			name: "MissingUserInformation",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameNoCiphering,
			},
			diagnostic: acse.DiagnosticContextName,
			marker:     xdlms.InitiateErrorVersionTooLow,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, 0, nil)
			resp := s.associate(t, testSession, encodeAARQ(t, tc.request))

			if resp.Result != acse.ResultRejectedPermanent {
				t.Errorf("Result = %v, want %v", resp.Result, acse.ResultRejectedPermanent)
			}
			if resp.Diagnostic != tc.diagnostic {
				t.Errorf("Diagnostic = %v, want %v", resp.Diagnostic, tc.diagnostic)
			}
			want := xdlms.AppendConfirmedServiceError(nil, tc.marker)
			if !bytes.Equal(resp.UserInformation, want) {
				t.Errorf("UserInformation = %x, want %x", resp.UserInformation, want)
			}
			if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
				t.Errorf("Status() = %v, want %v", status, StatusNonAssociated)
			}
			if s.d.Pool().Len() != 1 {
				t.Errorf("Pool().Len() = %d, want 1", s.d.Pool().Len())
			}
		})
	}
}

func TestAssociateLowestCipheredInitiate(t *testing.T) {
	s := newTestServer(t, 0, nil)

	// The initiate deciphers, but mechanism 0 only takes a plain one.
	resp := s.associate(t, testSession, encodeAARQ(t, acse.Request{
		ApplicationContext: oid.LogicalNameNoCiphering,
		CallingTitle:       testClientTitle,
		UserInformation:    cipheredInitiate(t),
	}))
	if resp.Result != acse.ResultRejectedPermanent || resp.Diagnostic != acse.DiagnosticContextName {
		t.Errorf("result = %v/%v, want rejected/%v", resp.Result, resp.Diagnostic, acse.DiagnosticContextName)
	}
	if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
		t.Errorf("Status() = %v, want %v", status, StatusNonAssociated)
	}
}

func TestAssociateProtocolVersion(t *testing.T) {
	s := newTestServer(t, 0, nil)

	b := encodeAARQ(t, acse.Request{
		ProtocolVersion:    true,
		ApplicationContext: oid.LogicalNameNoCiphering,
		UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
	})
	// 60 L 80 02 02 84: corrupt the version bit string.
	b[5] = 0x80

	resp := s.associate(t, testSession, b)
	if resp.Result != acse.ResultRejectedPermanent {
		t.Errorf("Result = %v, want %v", resp.Result, acse.ResultRejectedPermanent)
	}
	if resp.Source != acse.SourceServiceProvider || resp.Diagnostic != acse.DiagnosticNoReason {
		t.Errorf("diagnostic = %v/%v, want %v/%v", resp.Source, resp.Diagnostic,
			acse.SourceServiceProvider, acse.DiagnosticNoReason)
	}
	if resp.EchoProtocolVersion {
		t.Error("invalid protocol version echoed")
	}
}

func TestAssociateLow(t *testing.T) {
	s := newTestServer(t, 0, nil)

	resp := s.associate(t, testSession, lowAARQ(t, testPassword))
	if resp.Result != acse.ResultAccepted || resp.Diagnostic != acse.DiagnosticSuccess {
		t.Fatalf("result = %v/%v, want accepted", resp.Result, resp.Diagnostic)
	}
	if status, level := s.d.Status(testSession); status != StatusAssociated || level != AccessLow {
		t.Errorf("Status() = %v, %v, want %v, %v", status, level, StatusAssociated, AccessLow)
	}

	// Every byte of the mechanism name ahead of the mechanism id belongs
	// to the DLMS arc; a foreign arc is a context-name rejection.
	for i := 0; i < oid.Size-1; i++ {
		t.Run(fmt.Sprintf("arc byte %d", i), func(t *testing.T) {
			apdu := lowAARQ(t, testPassword)
			at := bytes.Index(apdu, []byte{acse.TagMechanismName, oid.Size})
			if at < 0 {
				t.Fatalf("mechanism name missing from %x", apdu)
			}
			apdu[at+2+i]++

			s := newTestServer(t, 0, nil)
			resp := s.associate(t, testSession, apdu)
			if resp.Result != acse.ResultRejectedPermanent || resp.Diagnostic != acse.DiagnosticContextName {
				t.Errorf("result = %v/%v, want rejected/%v", resp.Result, resp.Diagnostic, acse.DiagnosticContextName)
			}
			if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
				t.Errorf("Status() = %v, want %v", status, StatusNonAssociated)
			}
		})
	}
}

func TestAssociateLowPasswordMutation(t *testing.T) {
	for i := range testPassword {
		mutated := bytes.Clone(testPassword)
		mutated[i] ^= 0x01

		s := newTestServer(t, 0, nil)
		resp := s.associate(t, testSession, lowAARQ(t, mutated))
		if resp.Result != acse.ResultRejectedPermanent || resp.Diagnostic != acse.DiagnosticContextName {
			t.Errorf("byte %d: result = %v/%v, want rejected/%v", i, resp.Result, resp.Diagnostic, acse.DiagnosticContextName)
		}
		if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
			t.Errorf("byte %d: Status() = %v", i, status)
		}
	}

	for _, pw := range [][]byte{testPassword[:7], append(bytes.Clone(testPassword), '9'), {}} {
		s := newTestServer(t, 0, nil)
		resp := s.associate(t, testSession, lowAARQ(t, pw))
		if resp.Result != acse.ResultRejectedPermanent {
			t.Errorf("password %q: Result = %v, want rejected", pw, resp.Result)
		}
	}
}

func TestAssociateLowManagementPassword(t *testing.T) {
	s := newTestServer(t, 0, nil)

	reg, err := registry.New(
		registry.Descriptor{LogicalDevice: registry.ManagementLogicalDevice, Conformance: testConformance},
	)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	s.d.cfg.Registry = reg

	mgmt := []byte("MGMT-PASSWORD")
	if err := s.store.SetDevice(keys.KindManagementPassword, registry.ManagementLogicalDevice, mgmt); err != nil {
		t.Fatal(err)
	}
	if err := s.store.SetDevice(keys.KindPassword, registry.ManagementLogicalDevice, testPassword); err != nil {
		t.Fatal(err)
	}
	sess := Session{LogicalDevice: registry.ManagementLogicalDevice, ID: 1}

	if resp := s.associate(t, sess, lowAARQ(t, testPassword)); resp.Result != acse.ResultRejectedPermanent {
		t.Errorf("device password: Result = %v, want rejected", resp.Result)
	}
	if resp := s.associate(t, sess, lowAARQ(t, mgmt)); resp.Result != acse.ResultAccepted {
		t.Errorf("management password: Result = %v, want accepted", resp.Result)
	}
}

func TestAssociateHighPending(t *testing.T) {
	s := newTestServer(t, 0, nil)

	var previous []byte
	for i := 0; i < 100; i++ {
		resp := s.associate(t, testSession, highAARQ(t, cipheredInitiate(t)))
		if resp.Result != acse.ResultAccepted || resp.Diagnostic != acse.DiagnosticHighLevel {
			t.Fatalf("trial %d: result = %v/%v", i, resp.Result, resp.Diagnostic)
		}
		if status, level := s.d.Status(testSession); status != StatusPending || level != AccessLow {
			t.Fatalf("trial %d: Status() = %v, %v, want %v, %v", i, status, level, StatusPending, AccessLow)
		}
		if len(resp.StoC) != ChallengeSize {
			t.Fatalf("trial %d: StoC length %d", i, len(resp.StoC))
		}
		for _, c := range resp.StoC {
			if c < 0x30 || c > 0x79 {
				t.Fatalf("trial %d: StoC byte 0x%02X outside printable range", i, c)
			}
		}
		if bytes.Equal(resp.StoC, previous) {
			t.Fatalf("trial %d: StoC repeated", i)
		}
		previous = resp.StoC
	}
}

func TestAssociateHighResponse(t *testing.T) {
	s := newTestServer(t, 0, nil)

	resp := s.associate(t, testSession, highAARQ(t, cipheredInitiate(t)))
	if resp.Mechanism != oid.MechanismHighGMAC {
		t.Errorf("Mechanism = %v, want %v", resp.Mechanism, oid.MechanismHighGMAC)
	}
	if !bytes.Equal(resp.RespondingTitle, testLocalTitle) {
		t.Errorf("RespondingTitle = %q, want %q", resp.RespondingTitle, testLocalTitle)
	}
	if !resp.EchoProtocolVersion {
		t.Error("protocol version not echoed")
	}

	env, err := security.Parse(resp.UserInformation)
	if err != nil {
		t.Fatalf("Parse(user-information) error = %v", err)
	}
	if env.Tag != security.TagGloInitiateResponse || env.Control != security.ControlAuthenticatedEncryption {
		t.Errorf("envelope = 0x%02X/%v", env.Tag, env.Control)
	}
	plain, err := env.Open(testKeys, testLocalTitle)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := xdlms.ParseInitiateResponse(plain)
	if err != nil {
		t.Fatalf("ParseInitiateResponse() error = %v", err)
	}
	want := xdlms.InitiateResponse{Conformance: testConformance, ServerMaxPDU: 0x0100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InitiateResponse mismatch (-want +got):\n%s", diff)
	}

	c := s.d.Pool().Find(testSession)
	if !bytes.Equal(c.ctos, testCtoS) {
		t.Errorf("CtoS = %q, want %q", c.ctos, testCtoS)
	}
	if !bytes.Equal(c.callingTitle, testClientTitle) {
		t.Errorf("calling title = %q, want %q", c.callingTitle, testClientTitle)
	}
	if c.info.SecurityControl != security.ControlAuthenticatedEncryption {
		t.Errorf("SecurityControl = %v", c.info.SecurityControl)
	}
}

func TestAssociateHighTamperedInitiate(t *testing.T) {
	s := newTestServer(t, 0, nil)

	initiate := cipheredInitiate(t)
	initiate[len(initiate)-1] ^= 0xFF

	resp := s.associate(t, testSession, highAARQ(t, initiate))
	if resp.Result != acse.ResultRejectedPermanent {
		t.Errorf("Result = %v, want rejected", resp.Result)
	}
	if resp.StoC != nil {
		t.Error("StoC sent for a rejected association")
	}

	c := s.d.Pool().Find(testSession)
	if c.info.Conformance != 0 {
		t.Errorf("conformance = %#v, want 0", c.info.Conformance)
	}
	if c.status != StatusNonAssociated {
		t.Errorf("status = %v, want %v", c.status, StatusNonAssociated)
	}
}

func TestAssociateHighResponseTaggedInitiate(t *testing.T) {
	s := newTestServer(t, 0, nil)

	// A valid initiate-request sealed under the glo-initiate-response tag.
	initiate, err := security.Seal(security.TagGloInitiateResponse, security.ControlAuthenticatedEncryption,
		testKeys, testClientTitle, 0x00000001, initiateRequest(t, 6, testConformance, 0x0100))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	resp := s.associate(t, testSession, highAARQ(t, initiate))
	if resp.Result != acse.ResultRejectedPermanent {
		t.Errorf("Result = %v, want rejected", resp.Result)
	}
	if resp.StoC != nil {
		t.Error("StoC sent for a rejected association")
	}
	if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
		t.Errorf("Status() = %v, want %v", status, StatusNonAssociated)
	}
}

func TestAssociateHighRejections(t *testing.T) {
	tests := []struct {
		name    string
		request acse.Request
	}{
		{
			name: "PlainContext",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameNoCiphering,
				Mechanism:          oid.MechanismHighGMAC,
				CallingTitle:       testClientTitle,
				AuthValue:          testCtoS,
				UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
			},
		},
		{
			name: "EmptyChallenge",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameWithCiphering,
				Mechanism:          oid.MechanismHighSHA256,
				AuthValue:          []byte{},
				UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
			},
		},
		{
			name: "ChallengeTooLong",
			request: acse.Request{
				ApplicationContext: oid.LogicalNameWithCiphering,
				Mechanism:          oid.MechanismHighSHA256,
				AuthValue:          bytes.Repeat([]byte{'A'}, MaxChallengeSize+1),
				UserInformation:    initiateRequest(t, 6, testConformance, 0x0100),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, 0, nil)
			resp := s.associate(t, testSession, encodeAARQ(t, tc.request))
			if resp.Result != acse.ResultRejectedPermanent || resp.Diagnostic != acse.DiagnosticContextName {
				t.Errorf("result = %v/%v, want rejected/%v", resp.Result, resp.Diagnostic, acse.DiagnosticContextName)
			}
		})
	}
}

func TestAcceptChallenge(t *testing.T) {
	var handled *Handle
	handler := ApplicationHandlerFunc(func(h *Handle, apdu, out []byte) int {
		handled = h
		if !bytes.Equal(h.CtoS(), testCtoS) || len(h.StoC()) != ChallengeSize {
			t.Errorf("challenges = %q / %q", h.CtoS(), h.StoC())
		}
		if err := h.AcceptChallenge(); err != nil {
			t.Errorf("AcceptChallenge() error = %v", err)
		}
		if err := h.AcceptChallenge(); !errors.Is(err, ErrNotPending) {
			t.Errorf("second AcceptChallenge() error = %v, want %v", err, ErrNotPending)
		}
		out[0] = 0xC7
		return 1
	})
	s := newTestServer(t, 0, handler)

	s.associate(t, testSession, highAARQ(t, cipheredInitiate(t)))
	res, out := s.dispatch(t, testSession, []byte{0xC3, 0x01, 0xC1})
	if res.N != 1 || out[0] != 0xC7 {
		t.Fatalf("Dispatch() = %d (%x)", res.N, out)
	}
	if status, level := s.d.Status(testSession); status != StatusAssociated || level != AccessHigh {
		t.Errorf("Status() = %v, %v, want %v, %v", status, level, StatusAssociated, AccessHigh)
	}

	if handled.Valid() {
		t.Error("handle valid after Dispatch returned")
	}
	if err := handled.AcceptChallenge(); !errors.Is(err, ErrHandleInvalid) {
		t.Errorf("AcceptChallenge() after dispatch error = %v, want %v", err, ErrHandleInvalid)
	}
	if handled.EncryptionKey() != nil || handled.Status() != StatusNonAssociated {
		t.Error("invalid handle exposes association state")
	}
}

func TestPoolReplace(t *testing.T) {
	s := newTestServer(t, 0, nil)

	s.associate(t, testSession, highAARQ(t, cipheredInitiate(t)))
	first := s.d.Pool().Find(testSession)
	if first.encryptionKey == nil {
		t.Fatal("encryption key not loaded")
	}

	s.associate(t, testSession, lowestAARQ(t))
	second := s.d.Pool().Find(testSession)

	if s.d.Pool().Len() != 1 {
		t.Errorf("Pool().Len() = %d, want 1", s.d.Pool().Len())
	}
	if first == second {
		t.Error("context not replaced")
	}
	if first.encryptionKey != nil || first.stoc != nil {
		t.Error("replaced context keys not destroyed")
	}
	if second.status != StatusAssociated || second.level != AccessLowest {
		t.Errorf("new context = %v/%v", second.status, second.level)
	}
}

func TestPoolFull(t *testing.T) {
	s := newTestServer(t, 1, nil)

	s.associate(t, testSession, lowestAARQ(t))
	other := Session{LogicalDevice: testSession.LogicalDevice, ID: testSession.ID + 1}
	if res, _ := s.dispatch(t, other, lowestAARQ(t)); res.N != 0 {
		t.Errorf("Dispatch() on full pool = %d, want 0", res.N)
	}
	if s.d.Pool().Find(other) != nil {
		t.Error("context created in full pool")
	}

	// The existing session can still renegotiate.
	if resp := s.associate(t, testSession, lowestAARQ(t)); resp.Result != acse.ResultAccepted {
		t.Errorf("renegotiation Result = %v", resp.Result)
	}
}

func TestUnknownLogicalDevice(t *testing.T) {
	s := newTestServer(t, 0, nil)
	if res, _ := s.dispatch(t, Session{LogicalDevice: 0x0055, ID: 1}, lowestAARQ(t)); res.N != 0 {
		t.Errorf("Dispatch() = %d, want 0", res.N)
	}
	if s.d.Pool().Len() != 0 {
		t.Errorf("Pool().Len() = %d, want 0", s.d.Pool().Len())
	}
}

func TestRelease(t *testing.T) {
	s := newTestServer(t, 0, nil)

	if res, _ := s.dispatch(t, testSession, acse.RLRQ()); res.N != 0 {
		t.Errorf("RLRQ without association = %d, want 0", res.N)
	}

	other := Session{LogicalDevice: testSession.LogicalDevice, ID: 99}
	s.associate(t, other, lowestAARQ(t))
	if res, _ := s.dispatch(t, testSession, acse.RLRQ()); res.N != 0 {
		t.Errorf("RLRQ for another session = %d, want 0", res.N)
	}
	if s.d.Pool().Len() != 1 {
		t.Errorf("Pool().Len() = %d, want 1", s.d.Pool().Len())
	}

	res, out := s.dispatch(t, other, acse.RLRQ())
	if !bytes.Equal(out, []byte{0x63, 0x00, 0x00}) {
		t.Errorf("RLRE = %x (n=%d)", out, res.N)
	}
	if s.d.Pool().Len() != 0 {
		t.Errorf("Pool().Len() = %d, want 0", s.d.Pool().Len())
	}

	s.associate(t, other, lowestAARQ(t))
	if n := s.d.Dispatch(other, acse.RLRQ(), make([]byte, 2)).N; n != 0 {
		t.Errorf("RLRQ into short buffer = %d, want 0", n)
	}
	if s.d.Pool().Len() != 0 {
		t.Error("context kept after release into short buffer")
	}
}

func TestDispatchData(t *testing.T) {
	calls := 0
	handler := ApplicationHandlerFunc(func(h *Handle, apdu, out []byte) int {
		calls++
		if h.SessionID() != testSession.ID || h.Suit() != 1 {
			t.Errorf("handle session = %d suit = %d", h.SessionID(), h.Suit())
		}
		if h.AccessLevel() != AccessLowest {
			t.Errorf("AccessLevel() = %v", h.AccessLevel())
		}
		if h.MTU() != 0x0100 {
			t.Errorf("MTU() = %d, want 256", h.MTU())
		}
		if !bytes.Equal(h.LocalTitle(), testLocalTitle) {
			t.Errorf("LocalTitle() = %q", h.LocalTitle())
		}
		h.RequestKeyRefresh()
		return copy(out, apdu)
	})
	s := newTestServer(t, 0, handler)

	data := []byte{0xC0, 0x01, 0xC1, 0x00, 0x08}
	if res, _ := s.dispatch(t, testSession, data); res.N != 0 || calls != 0 {
		t.Errorf("data before association = %d (calls %d)", res.N, calls)
	}

	s.associate(t, testSession, lowestAARQ(t))
	res, out := s.dispatch(t, testSession, data)
	if calls != 1 || !bytes.Equal(out, data) {
		t.Errorf("Dispatch() = %x (calls %d)", out, calls)
	}
	if !res.RefreshKeys {
		t.Error("RefreshKeys not reported")
	}

	if res := s.d.Dispatch(testSession, nil, make([]byte, 8)); res.N != 0 {
		t.Errorf("empty APDU = %d", res.N)
	}
	if res := s.d.Dispatch(testSession, data, nil); res.N != 0 {
		t.Errorf("empty output = %d", res.N)
	}
}

func TestDispatchDataRejected(t *testing.T) {
	calls := 0
	handler := ApplicationHandlerFunc(func(h *Handle, apdu, out []byte) int {
		calls++
		return 0
	})
	s := newTestServer(t, 0, handler)

	s.associate(t, testSession, lowAARQ(t, []byte("wrong")))
	if res, _ := s.dispatch(t, testSession, []byte{0xC0, 0x01}); res.N != 0 || calls != 0 {
		t.Errorf("data on rejected association = %d (calls %d)", res.N, calls)
	}
}

func TestRefreshKeys(t *testing.T) {
	s := newTestServer(t, 0, nil)

	high := testSession
	low := Session{LogicalDevice: testSession.LogicalDevice, ID: 8}
	s.associate(t, high, highAARQ(t, cipheredInitiate(t)))
	s.associate(t, low, lowestAARQ(t))

	rotated := bytes.Repeat([]byte{0xAA}, 16)
	if err := s.store.SetDevice(keys.KindEncryption, 0x0001, rotated); err != nil {
		t.Fatal(err)
	}
	s.d.RefreshKeys()

	if got := s.d.Pool().Find(high).encryptionKey; !bytes.Equal(got, rotated) {
		t.Errorf("high-level key = %x, want %x", got, rotated)
	}
	if got := s.d.Pool().Find(low).encryptionKey; !bytes.Equal(got, testEncryptionKey) {
		t.Errorf("lowest-level key = %x, want unchanged", got)
	}
}

func TestCleanup(t *testing.T) {
	s := newTestServer(t, 0, nil)
	s.associate(t, testSession, lowestAARQ(t))

	if !s.d.Cleanup(testSession) {
		t.Error("Cleanup() = false")
	}
	if s.d.Cleanup(testSession) {
		t.Error("second Cleanup() = true")
	}
	if status, _ := s.d.Status(testSession); status != StatusNonAssociated {
		t.Errorf("Status() = %v", status)
	}
}

func TestHandleAccessors(t *testing.T) {
	s := newTestServer(t, 0, nil)
	s.associate(t, testSession, highAARQ(t, cipheredInitiate(t)))

	h := newHandle(s.d.Pool().Find(testSession))
	defer h.invalidate()

	if err := h.SetCallingTitle(bytes.Repeat([]byte{1}, 9)); !errors.Is(err, ErrInvalidTitle) {
		t.Errorf("SetCallingTitle(9 bytes) error = %v, want %v", err, ErrInvalidTitle)
	}
	if err := h.SetCallingTitle([]byte("NEWTITLE")); err != nil {
		t.Errorf("SetCallingTitle() error = %v", err)
	}
	if !bytes.Equal(h.CallingTitle(), []byte("NEWTITLE")) {
		t.Errorf("CallingTitle() = %q", h.CallingTitle())
	}

	buf := h.AttachStorage(16)
	buf[0] = 0xFF
	if h.StorageSize() != 16 || h.Storage()[0] != 0xFF {
		t.Errorf("Storage() = %x", h.Storage())
	}
	buf = h.AttachStorage(4)
	if h.StorageSize() != 4 || !bytes.Equal(buf, make([]byte, 4)) {
		t.Errorf("re-attached storage = %x", buf)
	}

	fc1, err := h.NextFrameCounter()
	if err != nil {
		t.Fatalf("NextFrameCounter() error = %v", err)
	}
	if fc2, _ := h.NextFrameCounter(); fc2 != fc1+1 {
		t.Errorf("NextFrameCounter() = %d, want %d", fc2, fc1+1)
	}

	if h.SecurityControl() != security.ControlAuthenticatedEncryption {
		t.Errorf("SecurityControl() = %v", h.SecurityControl())
	}
	if h.Mechanism() != oid.MechanismHighGMAC.OID() {
		t.Errorf("Mechanism() = %v", h.Mechanism())
	}
	if h.ApplicationContext() != oid.LogicalNameWithCiphering.OID() {
		t.Errorf("ApplicationContext() = %v", h.ApplicationContext())
	}

	hls := h.HLS()
	if hls.Mechanism != oid.MechanismHighGMAC || !bytes.Equal(hls.ServerTitle, testLocalTitle) {
		t.Errorf("HLS() = %+v", hls)
	}
}

func TestFrameCounterExhausted(t *testing.T) {
	c := &Context{frameCounter: ^uint32(0)}
	if _, err := c.nextFrameCounter(); !errors.Is(err, ErrFrameCounterExhausted) {
		t.Errorf("nextFrameCounter() error = %v, want %v", err, ErrFrameCounterExhausted)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"NoRegistry", Config{Keys: keys.NewLoader(keys.NewMemoryStore(), nil)}},
		{"NoKeys", Config{Registry: registry.Default()}},
		{"NegativeCapacity", Config{Registry: registry.Default(), Keys: keys.NewLoader(keys.NewMemoryStore(), nil), Capacity: -1}},
		{"SmallPDU", Config{Registry: registry.Default(), Keys: keys.NewLoader(keys.NewMemoryStore(), nil), MaxPDU: 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDispatcher(tc.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewDispatcher() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		v      Verdict
		result acse.Result
		status Status
	}{
		{Accepted(AccessLow), acse.ResultAccepted, StatusAssociated},
		{Pending(), acse.ResultAccepted, StatusPending},
		{Rejected(acse.DiagnosticContextName), acse.ResultRejectedPermanent, StatusNonAssociated},
		{rejectedByProvider(), acse.ResultRejectedPermanent, StatusNonAssociated},
	}
	for _, tc := range tests {
		if got := tc.v.Result(); got != tc.result {
			t.Errorf("%v.Result() = %v, want %v", tc.v, got, tc.result)
		}
		if got := tc.v.status(); got != tc.status {
			t.Errorf("%v.status() = %v, want %v", tc.v, got, tc.status)
		}
	}
}
