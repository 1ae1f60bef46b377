package acse

// rlre is the release response sent for every accepted release request.
var rlre = [...]byte{TagRLRE, 0x00, 0x00}

// RLRESize is the size of the release response.
const RLRESize = len(rlre)

// EncodeRLRE writes the release response into dst. It returns 0 when dst is
// too small to hold it.
func EncodeRLRE(dst []byte) int {
	if len(dst) < RLRESize {
		return 0
	}
	return copy(dst, rlre[:])
}

// RLRQ returns a release request without user information.
func RLRQ() []byte {
	return []byte{TagRLRQ, 0x00}
}

// IsRLRE reports whether b is a release response.
func IsRLRE(b []byte) bool {
	return len(b) >= 2 && b[0] == TagRLRE
}
