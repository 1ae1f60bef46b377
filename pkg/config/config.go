// Package config loads the YAML configuration of a meter server.
//
// A minimal file:
//
//	listen: ":4059"
//	logical_devices:
//	  - address: 1
//	    conformance: 0x001011
//	    suit: 1
//	    password: "12345678"
//	    local_title: SRVTITLE
//	    encryption_key: hex:000102030405060708090A0B0C0D0E0F
//	    authentication_key: hex:D0D1D2D3D4D5D6D7D8D9DADBDCDDDEDF
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/backkem/dlms/pkg/association"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/transport"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Config is the root of a configuration file.
type Config struct {
	// Listen is the UDP/TCP listen address (default ":4059").
	Listen string `yaml:"listen"`

	// TCP and UDP enable the wrapper transports. Both default to enabled
	// when neither is set.
	TCP bool `yaml:"tcp"`
	UDP bool `yaml:"udp"`

	// Capacity bounds the number of live associations.
	Capacity int `yaml:"capacity"`

	// MaxPDU is the server max-PDU ceiling.
	MaxPDU uint16 `yaml:"max_pdu"`

	// MaxConnections bounds the connections and UDP peers whose sessions
	// are tracked. Zero leaves the server default.
	MaxConnections int `yaml:"max_connections"`

	// LogLevel is one of disabled, error, warn, info, debug, trace
	// (default info).
	LogLevel string `yaml:"log_level"`

	// TraceFile receives a CBOR trace of every APDU when set.
	TraceFile string `yaml:"trace_file"`

	// KeyStore is the path of an SQLite key database. Inline secrets are
	// written into it on open. Empty keeps secrets in memory.
	KeyStore string `yaml:"key_store"`

	// LogicalDevices lists the logical devices accepting associations.
	// Empty selects registry.DefaultDescriptors.
	LogicalDevices []LogicalDevice `yaml:"logical_devices"`

	// Discovery configures DNS-SD advertisement.
	Discovery Discovery `yaml:"discovery"`
}

// LogicalDevice configures one logical device and its secrets.
type LogicalDevice struct {
	Address     uint16 `yaml:"address"`
	Conformance uint32 `yaml:"conformance"`
	Suit        uint8  `yaml:"suit"`

	Password              Secret `yaml:"password,omitempty"`
	ManagementPassword    Secret `yaml:"management_password,omitempty"`
	AuthenticationKey     Secret `yaml:"authentication_key,omitempty"`
	EncryptionKey         Secret `yaml:"encryption_key,omitempty"`
	ServerSigningKey      Secret `yaml:"server_signing_key,omitempty"`
	ClientVerificationKey Secret `yaml:"client_verification_key,omitempty"`
	LocalTitle            Secret `yaml:"local_title,omitempty"`
}

// Discovery configures DNS-SD advertisement.
type Discovery struct {
	Enabled bool `yaml:"enabled"`

	// SystemTitle is the advertised system title (default: the local title
	// of the first logical device).
	SystemTitle Secret `yaml:"system_title,omitempty"`

	// Manufacturer is the three letter FLAG id.
	Manufacturer string `yaml:"manufacturer,omitempty"`
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = fmt.Sprintf(":%d", transport.DefaultPort)
	}
	if !c.TCP && !c.UDP {
		c.TCP, c.UDP = true, true
	}
	if c.Capacity == 0 {
		c.Capacity = association.DefaultCapacity
	}
	if c.MaxPDU == 0 {
		c.MaxPDU = xdlms.DefaultMaxPDU
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity", ErrInvalidConfig)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: negative max_connections", ErrInvalidConfig)
	}
	if c.MaxPDU < xdlms.MinMaxPDU {
		return fmt.Errorf("%w: max_pdu %d below %d", ErrInvalidConfig, c.MaxPDU, xdlms.MinMaxPDU)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, ld := range c.LogicalDevices {
		for _, s := range ld.secrets() {
			if len(s.value) > s.kind.MaxSize() {
				return fmt.Errorf("%w: logical device 0x%04X: %s longer than %d bytes",
					ErrInvalidConfig, ld.Address, s.kind, s.kind.MaxSize())
			}
		}
	}
	if c.Discovery.Enabled && len(c.SystemTitle()) != 8 {
		return fmt.Errorf("%w: discovery needs an 8 byte system title", ErrInvalidConfig)
	}
	return nil
}

// Registry builds the capability registry.
func (c *Config) Registry() (*registry.Registry, error) {
	if len(c.LogicalDevices) == 0 {
		return registry.Default(), nil
	}
	descriptors := make([]registry.Descriptor, len(c.LogicalDevices))
	for i, ld := range c.LogicalDevices {
		descriptors[i] = registry.Descriptor{
			LogicalDevice: ld.Address,
			Conformance:   xdlms.Conformance(ld.Conformance),
			Suit:          ld.Suit,
		}
	}
	return registry.New(descriptors...)
}

// SystemTitle returns the title to advertise.
func (c *Config) SystemTitle() []byte {
	if len(c.Discovery.SystemTitle) > 0 {
		return c.Discovery.SystemTitle
	}
	if len(c.LogicalDevices) > 0 {
		return c.LogicalDevices[0].LocalTitle
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.LogLevel {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return logging.LogLevelInfo
	}
	return level
}

// LoggerFactory returns a pion logger factory writing to w at the
// configured level.
func (c *Config) LoggerFactory(w io.Writer) logging.LoggerFactory {
	return &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: c.Level(),
		ScopeLevels:     make(map[string]logging.LogLevel),
	}
}

// ParseLogLevel parses a log level name.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
}

type secret struct {
	kind  keys.Kind
	value []byte
}

func (ld *LogicalDevice) secrets() []secret {
	return []secret{
		{keys.KindPassword, ld.Password},
		{keys.KindManagementPassword, ld.ManagementPassword},
		{keys.KindAuthentication, ld.AuthenticationKey},
		{keys.KindEncryption, ld.EncryptionKey},
		{keys.KindServerSigning, ld.ServerSigningKey},
		{keys.KindClientVerification, ld.ClientVerificationKey},
		{keys.KindLocalTitle, ld.LocalTitle},
	}
}

// KeyStore is a keys.Store opened from the configuration.
type KeyStore interface {
	keys.Store
	io.Closer
}

type memoryStore struct {
	*keys.MemoryStore
}

func (memoryStore) Close() error { return nil }

// OpenKeyStore opens the configured key store and writes the inline
// secrets of every logical device into it.
func (c *Config) OpenKeyStore(ctx context.Context) (KeyStore, error) {
	if c.KeyStore == "" {
		m := keys.NewMemoryStore()
		for _, ld := range c.LogicalDevices {
			for _, s := range ld.secrets() {
				if len(s.value) == 0 {
					continue
				}
				if err := m.SetDevice(s.kind, ld.Address, s.value); err != nil {
					return nil, fmt.Errorf("config: logical device 0x%04X %s: %w", ld.Address, s.kind, err)
				}
			}
		}
		return memoryStore{m}, nil
	}

	db, err := keys.OpenSQLite(c.KeyStore)
	if err != nil {
		return nil, err
	}
	for _, ld := range c.LogicalDevices {
		ref := keys.Ref{LogicalDevice: ld.Address, Session: keys.AllSessions}
		for _, s := range ld.secrets() {
			if len(s.value) == 0 {
				continue
			}
			if err := db.Put(ctx, s.kind, ref, s.value); err != nil {
				db.Close()
				return nil, fmt.Errorf("config: logical device 0x%04X: %w", ld.Address, err)
			}
		}
	}
	return db, nil
}
