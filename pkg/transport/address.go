package transport

import (
	"fmt"
	"net"
)

// PeerAddress is where replies to a wrapper frame are sent. It names the
// IP endpoint only; the client and logical device wPorts travel in the
// frame header, so several clients may share one PeerAddress.
type PeerAddress struct {
	Addr          net.Addr
	TransportType TransportType
}

// String formats the address as "UDP:host:port" or "TCP:host:port".
func (p PeerAddress) String() string {
	if p.Addr == nil {
		return fmt.Sprintf("%s:<nil>", p.TransportType)
	}
	return fmt.Sprintf("%s:%s", p.TransportType, p.Addr.String())
}

// IsValid reports whether a reply can be routed to p.
func (p PeerAddress) IsValid() bool {
	return p.TransportType.IsValid() && p.Addr != nil
}

func NewUDPPeerAddress(addr net.Addr) PeerAddress {
	return PeerAddress{Addr: addr, TransportType: TransportTypeUDP}
}

func NewTCPPeerAddress(addr net.Addr) PeerAddress {
	return PeerAddress{Addr: addr, TransportType: TransportTypeTCP}
}

// ResolvePeerAddress resolves address on network ("udp" or "tcp" and
// their 4/6 variants) into a PeerAddress.
func ResolvePeerAddress(network, address string) (PeerAddress, error) {
	tt, err := ParseTransportType(network)
	if err != nil {
		return PeerAddress{}, err
	}
	switch tt {
	case TransportTypeUDP:
		a, err := net.ResolveUDPAddr(network, address)
		if err != nil {
			return PeerAddress{}, err
		}
		return NewUDPPeerAddress(a), nil
	default:
		a, err := net.ResolveTCPAddr(network, address)
		if err != nil {
			return PeerAddress{}, err
		}
		return NewTCPPeerAddress(a), nil
	}
}
