package discovery

import (
	"encoding/hex"
	"net"
	"sort"
	"strings"
)

// InstanceName returns the DNS-SD instance name of a meter: its system
// title as 16 upper-case hex characters.
func InstanceName(systemTitle []byte) string {
	return strings.ToUpper(hex.EncodeToString(systemTitle))
}

// ParseInstanceName recovers the system title from an instance name.
func ParseInstanceName(instanceName string) ([]byte, error) {
	if len(instanceName) != 2*SystemTitleSize {
		return nil, ErrInvalidInstanceName
	}
	title, err := hex.DecodeString(instanceName)
	if err != nil {
		return nil, ErrInvalidInstanceName
	}
	return title, nil
}

// SortIPsByPreference sorts addresses for dialing a meter: private IPv4
// first (meters sit on field networks), then public IPv4, then IPv6 global,
// ULA and link-local. Returns a new slice.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}
	switch {
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast():
		return 90
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4.IsPrivate() {
			return 0
		}
		if ip4.IsLinkLocalUnicast() {
			return 5
		}
		return 1
	}

	switch {
	case ip.IsGlobalUnicast() && !isUniqueLocal(ip):
		return 2
	case isUniqueLocal(ip):
		return 3
	case ip.IsLinkLocalUnicast():
		return 4
	}
	return 10
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address
// (fc00::/7).
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil || ip.To4() != nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
