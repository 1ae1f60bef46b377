package xdlms

import (
	"fmt"
	"strings"
)

// Conformance is the 24-bit xDLMS conformance block.
// Bit 23 is the first bit on the wire (reserved-zero).
type Conformance uint32

// Conformance bits.
const (
	ConformanceReservedZero                Conformance = 1 << 23
	ConformanceGeneralProtection           Conformance = 1 << 22
	ConformanceGeneralBlockTransfer        Conformance = 1 << 21
	ConformanceRead                        Conformance = 1 << 20
	ConformanceWrite                       Conformance = 1 << 19
	ConformanceUnconfirmedWrite            Conformance = 1 << 18
	ConformanceReservedSix                 Conformance = 1 << 17
	ConformanceReservedSeven               Conformance = 1 << 16
	ConformanceAttribute0SupportedWithSet  Conformance = 1 << 15
	ConformancePriorityMgmtSupported       Conformance = 1 << 14
	ConformanceAttribute0SupportedWithGet  Conformance = 1 << 13
	ConformanceBlockTransferWithGetOrRead  Conformance = 1 << 12
	ConformanceBlockTransferWithSetOrWrite Conformance = 1 << 11
	ConformanceBlockTransferWithAction     Conformance = 1 << 10
	ConformanceMultipleReferences          Conformance = 1 << 9
	ConformanceInformationReport           Conformance = 1 << 8
	ConformanceDataNotification            Conformance = 1 << 7
	ConformanceAccess                      Conformance = 1 << 6
	ConformanceParameterizedAccess         Conformance = 1 << 5
	ConformanceGet                         Conformance = 1 << 4
	ConformanceSet                         Conformance = 1 << 3
	ConformanceSelectiveAccess             Conformance = 1 << 2
	ConformanceEventNotification           Conformance = 1 << 1
	ConformanceAction                      Conformance = 1 << 0

	// ConformanceMask covers all 24 bits.
	ConformanceMask Conformance = 0xFFFFFF
)

var conformanceNames = [24]string{
	"action",
	"event-notification",
	"selective-access",
	"set",
	"get",
	"parameterized-access",
	"access",
	"data-notification",
	"information-report",
	"multiple-references",
	"block-transfer-with-action",
	"block-transfer-with-set-or-write",
	"block-transfer-with-get-or-read",
	"attribute0-supported-with-get",
	"priority-mgmt-supported",
	"attribute0-supported-with-set",
	"reserved-seven",
	"reserved-six",
	"unconfirmed-write",
	"write",
	"read",
	"general-block-transfer",
	"general-protection",
	"reserved-zero",
}

// ConformanceFromBytes decodes a big-endian 3-octet conformance block.
func ConformanceFromBytes(b [3]byte) Conformance {
	return Conformance(b[0])<<16 | Conformance(b[1])<<8 | Conformance(b[2])
}

// Bytes returns the big-endian 3-octet form.
func (c Conformance) Bytes() [3]byte {
	return [3]byte{byte(c >> 16), byte(c >> 8), byte(c)}
}

// Has reports whether every bit of bits is set in c.
func (c Conformance) Has(bits Conformance) bool {
	return c&bits == bits
}

// SubsetOf reports whether every bit of c is also set in other.
func (c Conformance) SubsetOf(other Conformance) bool {
	return c&other == c
}

// String lists the set bits by name.
func (c Conformance) String() string {
	if c&ConformanceMask == 0 {
		return "none"
	}
	var names []string
	for i := len(conformanceNames) - 1; i >= 0; i-- {
		if c&(1<<i) != 0 {
			names = append(names, conformanceNames[i])
		}
	}
	return strings.Join(names, "|")
}

// GoString returns the hex form for %#v.
func (c Conformance) GoString() string {
	return fmt.Sprintf("Conformance(0x%06X)", uint32(c))
}

// NegotiateConformance returns the conformance granted to a client.
//
// The server grants its full capability only when the client proposes every
// capability bit; any shortfall collapses the result to zero.
func NegotiateConformance(capability, proposed Conformance) Conformance {
	capability &= ConformanceMask
	if capability.SubsetOf(proposed) {
		return capability
	}
	return 0
}
