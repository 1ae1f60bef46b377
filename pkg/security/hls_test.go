package security

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/dlms/pkg/crypto"
	"github.com/backkem/dlms/pkg/oid"
)

func newTestHLS(t *testing.T, mech oid.Mechanism) (client, server *HLS) {
	t.Helper()

	base := HLS{
		Mechanism:   mech,
		Secret:      []byte("0123456789ABCDEF"),
		Keys:        testKeys,
		ClientTitle: []byte("CLIENT01"),
		ServerTitle: testTitle,
		CtoS:        []byte("ctos-challenge-1"),
		StoC:        []byte("stoc-challenge-server-side-0001"),
	}
	c, s := base, base

	if mech == oid.MechanismHighECDSA {
		clientKey := bytes.Repeat([]byte{0x11}, 32)
		serverKey := bytes.Repeat([]byte{0x22}, 32)
		clientPub, err := crypto.ECDSAPublicKey(clientKey)
		if err != nil {
			t.Fatalf("ECDSAPublicKey(client) error = %v", err)
		}
		serverPub, err := crypto.ECDSAPublicKey(serverKey)
		if err != nil {
			t.Fatalf("ECDSAPublicKey(server) error = %v", err)
		}
		c.SigningKey, c.VerifyKey = clientKey, serverPub
		s.SigningKey, s.VerifyKey = serverKey, clientPub
	}
	return &c, &s
}

func TestHLSReplyVerify(t *testing.T) {
	mechanisms := []oid.Mechanism{
		oid.MechanismHighMD5,
		oid.MechanismHighSHA1,
		oid.MechanismHighGMAC,
		oid.MechanismHighSHA256,
		oid.MechanismHighECDSA,
	}

	for _, mech := range mechanisms {
		t.Run(mech.String(), func(t *testing.T) {
			client, server := newTestHLS(t, mech)

			// Pass 3: the client answers StoC, the server checks it.
			pass3, err := client.Reply(PartyClient, 7, nil)
			if err != nil {
				t.Fatalf("client Reply() error = %v", err)
			}
			if err := server.Verify(PartyClient, pass3); err != nil {
				t.Errorf("server Verify(pass3) error = %v", err)
			}

			// Pass 4: the server answers CtoS, the client checks it.
			pass4, err := server.Reply(PartyServer, 8, nil)
			if err != nil {
				t.Fatalf("server Reply() error = %v", err)
			}
			if err := client.Verify(PartyServer, pass4); err != nil {
				t.Errorf("client Verify(pass4) error = %v", err)
			}

			// Replies are not interchangeable between passes.
			if err := client.Verify(PartyServer, pass3); err == nil {
				t.Error("Verify(pass3 as pass4) succeeded")
			}

			bad := append([]byte(nil), pass3...)
			bad[len(bad)-1] ^= 0x80
			if err := server.Verify(PartyClient, bad); err == nil {
				t.Error("Verify(tampered) succeeded")
			}
			if err := server.Verify(PartyClient, pass3[:len(pass3)-1]); err == nil {
				t.Error("Verify(short) succeeded")
			}
		})
	}
}

func TestHLSReplyShape(t *testing.T) {
	tests := []struct {
		mech oid.Mechanism
		size int
	}{
		{oid.MechanismHighMD5, crypto.MD5LenBytes},
		{oid.MechanismHighSHA1, crypto.SHA1LenBytes},
		{oid.MechanismHighGMAC, headerSize + TagSize},
		{oid.MechanismHighSHA256, crypto.SHA256LenBytes},
		{oid.MechanismHighECDSA, 64},
	}

	for _, tc := range tests {
		t.Run(tc.mech.String(), func(t *testing.T) {
			client, _ := newTestHLS(t, tc.mech)
			reply, err := client.Reply(PartyClient, 0x01020304, nil)
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}
			if len(reply) != tc.size {
				t.Errorf("len(Reply()) = %d, want %d", len(reply), tc.size)
			}
		})
	}
}

func TestHLSMD5Vector(t *testing.T) {
	h := &HLS{
		Mechanism: oid.MechanismHighMD5,
		Secret:    []byte("c"),
		StoC:      []byte("ab"),
	}
	got, err := h.Reply(PartyClient, 0, nil)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	// MD5("abc")
	want := []byte{
		0x90, 0x01, 0x50, 0x98, 0x3c, 0xd2, 0x4f, 0xb0,
		0xd6, 0x96, 0x3f, 0x7d, 0x28, 0xe1, 0x7f, 0x72,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Reply() = %x, want %x", got, want)
	}
}

func TestHLSGMACLayout(t *testing.T) {
	client, _ := newTestHLS(t, oid.MechanismHighGMAC)
	reply, err := client.Reply(PartyClient, 0xA1B2C3D4, nil)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if Control(reply[0]) != ControlAuthentication {
		t.Errorf("SC = 0x%02X, want 0x10", reply[0])
	}
	if !bytes.Equal(reply[1:5], []byte{0xA1, 0xB2, 0xC3, 0xD4}) {
		t.Errorf("FC = %x, want a1b2c3d4", reply[1:5])
	}

	wrongSC := append([]byte(nil), reply...)
	wrongSC[0] = byte(ControlAuthenticatedEncryption)
	if err := client.Verify(PartyClient, wrongSC); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Verify(wrong SC) error = %v, want %v", err, ErrAuthFailed)
	}
}

func TestHLSErrors(t *testing.T) {
	h := &HLS{Mechanism: oid.MechanismHigh}
	if _, err := h.Reply(PartyClient, 0, nil); !errors.Is(err, ErrUnsupportedMechanism) {
		t.Errorf("Reply(mechanism 2) error = %v, want %v", err, ErrUnsupportedMechanism)
	}
	if err := h.Verify(PartyClient, []byte{1}); !errors.Is(err, ErrUnsupportedMechanism) {
		t.Errorf("Verify(mechanism 2) error = %v, want %v", err, ErrUnsupportedMechanism)
	}

	for _, mech := range []oid.Mechanism{oid.MechanismHighMD5, oid.MechanismHighSHA1, oid.MechanismHighSHA256, oid.MechanismHighECDSA} {
		h := &HLS{Mechanism: mech, StoC: []byte("x")}
		if _, err := h.Reply(PartyClient, 0, nil); !errors.Is(err, ErrMissingSecret) {
			t.Errorf("Reply(%v, no secret) error = %v, want %v", mech, err, ErrMissingSecret)
		}
	}

	gmac := &HLS{Mechanism: oid.MechanismHighGMAC}
	if _, err := gmac.Reply(PartyClient, 0, nil); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Reply(GMAC, no key) error = %v, want %v", err, ErrMissingKey)
	}
}

func TestPartyString(t *testing.T) {
	if PartyClient.String() != "client" || PartyServer.String() != "server" {
		t.Errorf("Party strings = %q, %q", PartyClient.String(), PartyServer.String())
	}
}
