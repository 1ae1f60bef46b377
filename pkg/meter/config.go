package meter

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/backkem/dlms/pkg/apdulog"
	"github.com/backkem/dlms/pkg/association"
	"github.com/backkem/dlms/pkg/discovery"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/transport"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/pion/logging"
)

// DefaultPort is the IANA assigned DLMS/COSEM wrapper port.
const DefaultPort = transport.DefaultPort

// ServerConfig holds all configuration for a meter Server.
type ServerConfig struct {
	// Logical devices - Required
	Registry *registry.Registry

	// Secrets - Required
	Keys keys.Loader

	// Handler services APDUs on established associations. Nil installs an
	// HLSHandler in front of a RejectingHandler.
	Handler association.ApplicationHandler

	// Association pool
	Capacity int    // Live associations (default: association.DefaultCapacity)
	MaxPDU   uint16 // Server max-PDU ceiling (default: xdlms.DefaultMaxPDU)

	// MaxConnections bounds the TCP connections and UDP peers whose sessions
	// are tracked. The least recently heard one is released past it
	// (default: DefaultMaxConnections).
	MaxConnections int

	// Network
	ListenAddr string // Listen address (default: ":4059")
	UDPEnabled bool   // When neither transport is enabled, both are
	TCPEnabled bool

	// Trace receives every APDU in and out. Nil disables tracing.
	Trace apdulog.Logger

	// Discovery advertises the meter over DNS-SD. Nil disables it.
	Discovery *DiscoveryConfig

	// Random seeds frame counters and challenges (default: crypto/rand).
	Random io.Reader

	// Callbacks - Optional
	OnStateChanged func(state ServerState)

	// LoggerFactory for creating loggers. Nil disables logging.
	LoggerFactory logging.LoggerFactory

	// Advanced - Internal use / Testing
	TransportFactory transport.Factory // For virtual network testing
}

// DiscoveryConfig configures DNS-SD advertising.
type DiscoveryConfig struct {
	// SystemTitle names the advertised instance. Required, 8 bytes.
	SystemTitle []byte

	// Manufacturer is advertised in the MF TXT key. Optional.
	Manufacturer string

	// ServerFactory creates mDNS responders (for testing).
	ServerFactory discovery.MDNSServerFactory
}

// Validate checks the configuration for errors.
func (c *ServerConfig) Validate() error {
	if c.Registry == nil || c.Registry.Len() == 0 {
		return ErrRegistryRequired
	}
	if c.Keys == nil {
		return ErrKeysRequired
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity", ErrInvalidConfig)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: negative max connections", ErrInvalidConfig)
	}
	if c.MaxPDU != 0 && c.MaxPDU < xdlms.MinMaxPDU {
		return fmt.Errorf("%w: max PDU %d below %d", ErrInvalidConfig, c.MaxPDU, xdlms.MinMaxPDU)
	}
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("%w: listen address: %w", ErrInvalidConfig, err)
		}
	}
	if c.Discovery != nil && len(c.Discovery.SystemTitle) != discovery.SystemTitleSize {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, discovery.ErrInvalidSystemTitle)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *ServerConfig) applyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = association.DefaultCapacity
	}
	if c.MaxPDU == 0 {
		c.MaxPDU = xdlms.DefaultMaxPDU
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":" + strconv.Itoa(DefaultPort)
	}
	if !c.UDPEnabled && !c.TCPEnabled {
		c.UDPEnabled = true
		c.TCPEnabled = true
	}
	if c.Trace == nil {
		c.Trace = apdulog.NoopLogger{}
	}
}

// port returns the numeric port of ListenAddr.
func (c *ServerConfig) port() int {
	_, p, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return DefaultPort
	}
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 {
		return DefaultPort
	}
	return n
}
