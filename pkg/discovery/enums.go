// Package discovery advertises and resolves DLMS/COSEM meters over DNS-SD
// (mDNS).
//
// A meter publishes one service per transport it listens on:
//   - _dlms._tcp for the IEC 62056-47 TCP profile
//   - _dlms._udp for the IEC 62056-47 UDP profile
//
// The instance name is the hex encoded server system title and the TXT
// record lists the logical devices and security suit the meter serves.
package discovery

// ServiceType identifies the DNS-SD service a meter is advertised under.
type ServiceType int

// ServiceType constants.
const (
	// ServiceTypeUnknown represents an unknown or invalid service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypeStream is the TCP wrapper profile (_dlms._tcp).
	ServiceTypeStream

	// ServiceTypeDatagram is the UDP wrapper profile (_dlms._udp).
	ServiceTypeDatagram
)

// DNS-SD service type strings.
const (
	ServiceStream   = "_dlms._tcp"
	ServiceDatagram = "_dlms._udp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// String returns a human-readable string for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeStream:
		return "Stream"
	case ServiceTypeDatagram:
		return "Datagram"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service type is known.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypeStream || s == ServiceTypeDatagram
}

// ServiceString returns the DNS-SD service string, or "" for an invalid type.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypeStream:
		return ServiceStream
	case ServiceTypeDatagram:
		return ServiceDatagram
	default:
		return ""
	}
}
