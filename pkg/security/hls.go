package security

import (
	"crypto/subtle"
	"encoding/binary"
	"io"

	"github.com/backkem/dlms/pkg/crypto"
	"github.com/backkem/dlms/pkg/oid"
)

// Party identifies which side of an HLS exchange produced a reply.
type Party int

const (
	// PartyClient computes f(StoC) in pass 3.
	PartyClient Party = iota

	// PartyServer computes f(CtoS) in pass 4.
	PartyServer
)

// String returns the name of the party.
func (p Party) String() string {
	if p == PartyServer {
		return "server"
	}
	return "client"
}

// HLS holds the material for the pass 3/pass 4 challenge replies of
// high-level security mechanisms 3 to 7.
type HLS struct {
	Mechanism oid.Mechanism

	// Secret is the shared HLS secret (mechanisms 3, 4 and 6).
	Secret []byte

	// Keys protect the GMAC reply (mechanism 5).
	Keys Keys

	// SigningKey is the replying party's private scalar and VerifyKey the
	// peer's X || Y public key (mechanism 7).
	SigningKey []byte
	VerifyKey  []byte

	ClientTitle []byte
	ServerTitle []byte
	CtoS        []byte
	StoC        []byte
}

// order returns the titles and challenges from the point of view of the
// party producing the reply. A reply always answers the peer's challenge.
func (h *HLS) order(p Party) (ownTitle, peerTitle, peerChallenge, ownChallenge []byte) {
	if p == PartyServer {
		return h.ServerTitle, h.ClientTitle, h.CtoS, h.StoC
	}
	return h.ClientTitle, h.ServerTitle, h.StoC, h.CtoS
}

// Reply computes the reply party p sends for the peer's challenge.
// frameCounter is used by mechanism 5; random by mechanism 7 (nil selects
// crypto/rand).
func (h *HLS) Reply(p Party, frameCounter uint32, random io.Reader) ([]byte, error) {
	ownTitle, peerTitle, peerChallenge, ownChallenge := h.order(p)

	switch h.Mechanism {
	case oid.MechanismHighMD5:
		if len(h.Secret) == 0 {
			return nil, ErrMissingSecret
		}
		return crypto.MD5(peerChallenge, h.Secret), nil

	case oid.MechanismHighSHA1:
		if len(h.Secret) == 0 {
			return nil, ErrMissingSecret
		}
		return crypto.SHA1(peerChallenge, h.Secret), nil

	case oid.MechanismHighGMAC:
		return gmacReply(h.Keys, ownTitle, frameCounter, peerChallenge)

	case oid.MechanismHighSHA256:
		if len(h.Secret) == 0 {
			return nil, ErrMissingSecret
		}
		return crypto.SHA256(h.Secret, ownTitle, peerTitle, peerChallenge, ownChallenge), nil

	case oid.MechanismHighECDSA:
		if len(h.SigningKey) == 0 {
			return nil, ErrMissingSecret
		}
		return crypto.ECDSASign(random, h.SigningKey, ownTitle, peerTitle, peerChallenge, ownChallenge)

	default:
		return nil, ErrUnsupportedMechanism
	}
}

// Verify checks a reply produced by party p.
func (h *HLS) Verify(p Party, reply []byte) error {
	ownTitle, peerTitle, peerChallenge, ownChallenge := h.order(p)

	switch h.Mechanism {
	case oid.MechanismHighGMAC:
		if len(reply) != headerSize+TagSize || Control(reply[0]) != ControlAuthentication {
			return ErrAuthFailed
		}
		fc := binary.BigEndian.Uint32(reply[1:headerSize])
		expected, err := gmacReply(h.Keys, ownTitle, fc, peerChallenge)
		if err != nil {
			return err
		}
		return compare(expected, reply)

	case oid.MechanismHighECDSA:
		if len(h.VerifyKey) == 0 {
			return ErrMissingSecret
		}
		ok, err := crypto.ECDSAVerify(h.VerifyKey, reply, ownTitle, peerTitle, peerChallenge, ownChallenge)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAuthFailed
		}
		return nil

	default:
		expected, err := h.Reply(p, 0, nil)
		if err != nil {
			return err
		}
		return compare(expected, reply)
	}
}

// gmacReply computes SC || FC || GMAC(SC || AK || challenge) with
// IV = title || FC.
func gmacReply(keys Keys, title []byte, fc uint32, challenge []byte) ([]byte, error) {
	if len(keys.Encryption) == 0 {
		return nil, ErrMissingKey
	}
	iv, err := crypto.BuildIV(title, fc)
	if err != nil {
		return nil, err
	}
	gcm, err := crypto.NewAESGCM(keys.Encryption)
	if err != nil {
		return nil, err
	}
	tag, err := gcm.Authenticate(iv, aad(ControlAuthentication, keys, challenge))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+TagSize)
	out = append(out, byte(ControlAuthentication))
	out = binary.BigEndian.AppendUint32(out, fc)
	return append(out, tag...), nil
}

func compare(expected, got []byte) error {
	if len(expected) != len(got) || subtle.ConstantTimeCompare(expected, got) != 1 {
		return ErrAuthFailed
	}
	return nil
}
