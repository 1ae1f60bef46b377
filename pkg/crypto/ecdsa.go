// ECDSA signing and verification for HLS mechanism 7.
// Security suite 1 uses P-256 with SHA-256, suite 2 uses P-384 with SHA-384.
// Keys and signatures use the raw fixed-size encodings carried in COSEM:
//   - private key: scalar d (32 or 48 bytes)
//   - public key: X || Y (64 or 96 bytes), without the 0x04 prefix
//   - signature: r || s (64 or 96 bytes)

package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Errors for ECDSA operations.
var (
	ErrECDSAInvalidPrivateKey = errors.New("ecdsa: private key must be 32 or 48 bytes")
	ErrECDSAInvalidPublicKey  = errors.New("ecdsa: public key must be 64 or 96 bytes")
	ErrECDSANotOnCurve        = errors.New("ecdsa: public key point is not on the curve")
	ErrECDSAInvalidSignature  = errors.New("ecdsa: invalid signature length")
)

// curveParams ties a curve to its digest and component size.
type curveParams struct {
	curve  elliptic.Curve
	ecdh   ecdh.Curve
	size   int
	digest func(...[]byte) []byte
}

var (
	p256Params = curveParams{curve: elliptic.P256(), ecdh: ecdh.P256(), size: 32, digest: SHA256}
	p384Params = curveParams{curve: elliptic.P384(), ecdh: ecdh.P384(), size: 48, digest: SHA384}
)

func paramsForScalar(n int) (curveParams, bool) {
	switch n {
	case p256Params.size:
		return p256Params, true
	case p384Params.size:
		return p384Params, true
	}
	return curveParams{}, false
}

// ECDSAPublicKey derives the raw X || Y public key from a private scalar.
func ECDSAPublicKey(privateKey []byte) ([]byte, error) {
	p, ok := paramsForScalar(len(privateKey))
	if !ok {
		return nil, ErrECDSAInvalidPrivateKey
	}
	key, err := p.ecdh.NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa: %w", err)
	}
	// Uncompressed point: 0x04 || X || Y
	return key.PublicKey().Bytes()[1:], nil
}

// ECDSASign signs the concatenated message parts with the curve implied by
// the private key length. Returns r || s, each zero-padded to the curve size.
func ECDSASign(random io.Reader, privateKey []byte, message ...[]byte) ([]byte, error) {
	p, ok := paramsForScalar(len(privateKey))
	if !ok {
		return nil, ErrECDSAInvalidPrivateKey
	}
	if random == nil {
		random = rand.Reader
	}

	pub, err := ECDSAPublicKey(privateKey)
	if err != nil {
		return nil, err
	}
	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: p.curve,
			X:     new(big.Int).SetBytes(pub[:p.size]),
			Y:     new(big.Int).SetBytes(pub[p.size:]),
		},
		D: new(big.Int).SetBytes(privateKey),
	}

	r, s, err := ecdsa.Sign(random, priv, p.digest(message...))
	if err != nil {
		return nil, fmt.Errorf("ecdsa: sign failed: %w", err)
	}

	sig := make([]byte, 2*p.size)
	r.FillBytes(sig[:p.size])
	s.FillBytes(sig[p.size:])
	return sig, nil
}

// ECDSAVerify verifies an r || s signature over the concatenated message parts.
// The curve is selected by the public key length.
func ECDSAVerify(publicKey, signature []byte, message ...[]byte) (bool, error) {
	var p curveParams
	switch len(publicKey) {
	case 2 * p256Params.size:
		p = p256Params
	case 2 * p384Params.size:
		p = p384Params
	default:
		return false, ErrECDSAInvalidPublicKey
	}
	if len(signature) != 2*p.size {
		return false, ErrECDSAInvalidSignature
	}

	x := new(big.Int).SetBytes(publicKey[:p.size])
	y := new(big.Int).SetBytes(publicKey[p.size:])
	if !p.curve.IsOnCurve(x, y) {
		return false, ErrECDSANotOnCurve
	}
	pub := &ecdsa.PublicKey{Curve: p.curve, X: x, Y: y}

	r := new(big.Int).SetBytes(signature[:p.size])
	s := new(big.Int).SetBytes(signature[p.size:])

	return ecdsa.Verify(pub, p.digest(message...), r, s), nil
}
