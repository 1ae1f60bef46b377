// Package registry maps logical devices to the capabilities a meter offers
// on them: the xDLMS conformance block granted on association and the
// object-list suit the application layer exposes.
package registry

import (
	"errors"
	"fmt"

	"github.com/backkem/dlms/pkg/xdlms"
)

// ManagementLogicalDevice is the reserved management logical device.
// It authenticates low-level associations with the management password.
const ManagementLogicalDevice uint16 = 0x3FFC

var (
	// ErrDuplicateLogicalDevice is returned when two descriptors share an id.
	ErrDuplicateLogicalDevice = errors.New("registry: duplicate logical device")

	// ErrInvalidLogicalDevice is returned for logical device 0, which is the
	// wrapper's no-station address.
	ErrInvalidLogicalDevice = errors.New("registry: invalid logical device")
)

// Descriptor describes one logical device.
type Descriptor struct {
	LogicalDevice uint16
	Conformance   xdlms.Conformance
	Suit          uint8
}

// String returns a short description.
func (d Descriptor) String() string {
	return fmt.Sprintf("ld=0x%04X conformance=%06X suit=0x%02X",
		d.LogicalDevice, uint32(d.Conformance), d.Suit)
}

// Registry is an immutable table of descriptors.
type Registry struct {
	entries []Descriptor
}

// DefaultDescriptors is the compiled-in logical device table.
var DefaultDescriptors = []Descriptor{
	{LogicalDevice: ManagementLogicalDevice, Conformance: 0x00301D, Suit: 1 << 7},
	{LogicalDevice: 0x0001, Conformance: 0x001011, Suit: 1 << 0},
	{LogicalDevice: 0x0002, Conformance: 0x001011, Suit: 1 << 1},
	{LogicalDevice: 0x0003, Conformance: 0x00301D, Suit: 1 << 2},
}

// New builds a registry from descriptors. The slice is copied.
func New(descriptors ...Descriptor) (*Registry, error) {
	seen := make(map[uint16]struct{}, len(descriptors))
	entries := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.LogicalDevice == 0 {
			return nil, ErrInvalidLogicalDevice
		}
		if _, dup := seen[d.LogicalDevice]; dup {
			return nil, fmt.Errorf("%w: 0x%04X", ErrDuplicateLogicalDevice, d.LogicalDevice)
		}
		seen[d.LogicalDevice] = struct{}{}
		d.Conformance &= xdlms.ConformanceMask
		entries = append(entries, d)
	}
	return &Registry{entries: entries}, nil
}

// Default returns a registry holding DefaultDescriptors.
func Default() *Registry {
	r, err := New(DefaultDescriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the descriptor for a logical device.
func (r *Registry) Lookup(logicalDevice uint16) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	for _, d := range r.entries {
		if d.LogicalDevice == logicalDevice {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Descriptors returns a copy of all descriptors in table order.
func (r *Registry) Descriptors() []Descriptor {
	if r == nil {
		return nil
	}
	return append([]Descriptor(nil), r.entries...)
}

// Len returns the number of logical devices.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
