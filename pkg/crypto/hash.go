// Package crypto provides the cryptographic primitives used by DLMS/COSEM
// association and ciphering: AES-GCM and its CTR half, IV construction,
// challenge generation, the HLS digests and ECDSA over P-256/P-384.
package crypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
)

// Digest output lengths in bytes.
const (
	MD5LenBytes    = md5.Size
	SHA1LenBytes   = sha1.Size
	SHA256LenBytes = sha256.Size
	SHA384LenBytes = sha512.Size384
)

// MD5 computes the MD5 digest of the concatenated parts.
// Used by HLS mechanism 3 only; MD5 is not collision resistant.
func MD5(parts ...[]byte) []byte {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// SHA1 computes the SHA-1 digest of the concatenated parts (HLS mechanism 4).
func SHA1(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// SHA256 computes the SHA-256 digest of the concatenated parts (HLS mechanism 6).
func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// SHA384 computes the SHA-384 digest of the concatenated parts.
func SHA384(parts ...[]byte) []byte {
	h := sha512.New384()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
