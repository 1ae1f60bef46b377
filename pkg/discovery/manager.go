package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// ManagerConfig holds configuration for the discovery Manager.
type ManagerConfig struct {
	// Port is the wrapper port to advertise (default: 4059).
	Port int

	// Interfaces specifies which network interfaces to use.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// BrowseTimeout is the default timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the default timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// ServerFactory is the factory for creating mDNS servers (for testing).
	ServerFactory MDNSServerFactory

	// MDNSResolver is the mDNS resolver implementation (for testing).
	MDNSResolver MDNSResolver

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Manager coordinates advertising of the local meter and resolution of
// remote ones.
type Manager struct {
	config     ManagerConfig
	advertiser *Advertiser
	resolver   *Resolver

	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new discovery Manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	advertiser, err := NewAdvertiser(AdvertiserConfig{
		Port:          config.Port,
		Interfaces:    config.Interfaces,
		ServerFactory: config.ServerFactory,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	resolver, err := NewResolver(ResolverConfig{
		MDNSResolver:  config.MDNSResolver,
		BrowseTimeout: config.BrowseTimeout,
		LookupTimeout: config.LookupTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		config:     config,
		advertiser: advertiser,
		resolver:   resolver,
	}, nil
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close stops all services and releases resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return m.advertiser.Close()
}

// Advertise publishes the meter under every given service type. On
// failure, services started by this call are withdrawn.
func (m *Manager) Advertise(txt MeterTXT, serviceTypes ...ServiceType) error {
	if m.isClosed() {
		return ErrClosed
	}

	var started []ServiceType
	for _, st := range serviceTypes {
		if err := m.advertiser.Start(st, txt); err != nil {
			for _, s := range started {
				_ = m.advertiser.Stop(s)
			}
			return err
		}
		started = append(started, st)
	}
	return nil
}

// StopAdvertising stops advertising a specific service type.
func (m *Manager) StopAdvertising(serviceType ServiceType) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.advertiser.Stop(serviceType)
}

// IsAdvertising returns true if the given service type is currently being advertised.
func (m *Manager) IsAdvertising(serviceType ServiceType) bool {
	if m.isClosed() {
		return false
	}
	return m.advertiser.IsAdvertising(serviceType)
}

// Browse discovers meters advertised under serviceType.
func (m *Manager) Browse(ctx context.Context, serviceType ServiceType) (<-chan ResolvedService, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.resolver.Browse(ctx, serviceType)
}

// LookupMeter finds a meter by system title.
func (m *Manager) LookupMeter(ctx context.Context, serviceType ServiceType, systemTitle []byte) (*ResolvedService, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	return m.resolver.LookupMeter(ctx, serviceType, systemTitle)
}

// FindLogicalDevice browses for the first meter serving logicalDevice.
func (m *Manager) FindLogicalDevice(ctx context.Context, serviceType ServiceType, logicalDevice uint16) (*ResolvedService, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := m.Browse(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		meter, err := svc.Meter()
		if err != nil {
			continue
		}
		for _, ld := range meter.LogicalDevices {
			if ld == logicalDevice {
				return &svc, nil
			}
		}
	}
	return nil, ErrServiceNotFound
}

// Advertiser returns the underlying Advertiser.
func (m *Manager) Advertiser() *Advertiser {
	return m.advertiser
}

// Resolver returns the underlying Resolver.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}
