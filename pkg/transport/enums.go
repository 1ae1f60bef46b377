package transport

import "fmt"

// TransportType is the IP bearer a wrapped APDU travelled over. The wrapper
// header is the same on both; only TCP needs it to delimit frames.
type TransportType int

const (
	TransportTypeUnknown TransportType = iota
	// TransportTypeUDP carries one wrapper frame per datagram.
	TransportTypeUDP
	// TransportTypeTCP carries a stream of wrapper frames, split on the
	// header's length field.
	TransportTypeTCP
)

func (t TransportType) String() string {
	switch t {
	case TransportTypeUDP:
		return "UDP"
	case TransportTypeTCP:
		return "TCP"
	default:
		return "Unknown"
	}
}

// IsValid reports whether t is UDP or TCP.
func (t TransportType) IsValid() bool {
	return t == TransportTypeUDP || t == TransportTypeTCP
}

// Network returns the net package network name for t.
func (t TransportType) Network() string {
	switch t {
	case TransportTypeUDP:
		return "udp"
	case TransportTypeTCP:
		return "tcp"
	default:
		return ""
	}
}

// ParseTransportType maps a net package network name ("udp", "tcp6", ...)
// onto a TransportType.
func ParseTransportType(network string) (TransportType, error) {
	switch network {
	case "udp", "udp4", "udp6":
		return TransportTypeUDP, nil
	case "tcp", "tcp4", "tcp6":
		return TransportTypeTCP, nil
	default:
		return TransportTypeUnknown, fmt.Errorf("transport: unsupported network %q", network)
	}
}
