// Package association implements the server side of DLMS/COSEM association
// control: AARQ evaluation for the no-security, low-level and high-level
// authentication tiers, AARE and RLRE generation, the bounded pool of live
// associations and the dispatcher that routes APDUs between them and the
// application.
package association

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/backkem/dlms/pkg/acse"
	"github.com/backkem/dlms/pkg/crypto"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/registry"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/pion/logging"
)

// ApplicationHandler services APDUs received on an association. It writes
// the response into out and returns its length (0 for no response).
type ApplicationHandler interface {
	HandleAPDU(h *Handle, apdu, out []byte) int
}

// ApplicationHandlerFunc adapts a function to ApplicationHandler.
type ApplicationHandlerFunc func(h *Handle, apdu, out []byte) int

// HandleAPDU calls f.
func (f ApplicationHandlerFunc) HandleAPDU(h *Handle, apdu, out []byte) int {
	return f(h, apdu, out)
}

// Config configures a Dispatcher.
type Config struct {
	// Registry lists the logical devices accepting associations. Required.
	Registry *registry.Registry

	// Keys supplies passwords, keys and titles. Required.
	Keys keys.Loader

	// Handler services APDUs on established associations. Nil drops them.
	Handler ApplicationHandler

	// Capacity bounds the number of live associations (default DefaultCapacity).
	Capacity int

	// MaxPDU is the server max-PDU ceiling (default xdlms.DefaultMaxPDU).
	MaxPDU uint16

	// Random seeds frame counters and generates challenges (default crypto/rand).
	Random io.Reader

	// LoggerFactory for creating loggers. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Registry == nil || c.Registry.Len() == 0 {
		return fmt.Errorf("%w: registry required", ErrInvalidConfig)
	}
	if c.Keys == nil {
		return fmt.Errorf("%w: key loader required", ErrInvalidConfig)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity", ErrInvalidConfig)
	}
	if c.MaxPDU != 0 && c.MaxPDU < xdlms.MinMaxPDU {
		return fmt.Errorf("%w: max PDU %d below %d", ErrInvalidConfig, c.MaxPDU, xdlms.MinMaxPDU)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.MaxPDU == 0 {
		c.MaxPDU = xdlms.DefaultMaxPDU
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}
}

// Result is the outcome of one Dispatch call.
type Result struct {
	// N is the number of response bytes written to out (0 for no response).
	N int

	// RefreshKeys is set when the application handler requested a key
	// reload. The caller should invoke Dispatcher.RefreshKeys.
	RefreshKeys bool
}

// Dispatcher is the single entry point for APDUs received by the server.
// It is safe for concurrent use; calls are serialized.
type Dispatcher struct {
	cfg  Config
	pool *Pool
	log  logging.LeveledLogger

	mu sync.Mutex
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	d := &Dispatcher{
		cfg:  cfg,
		pool: NewPool(cfg.Capacity),
	}
	if cfg.LoggerFactory != nil {
		d.log = cfg.LoggerFactory.NewLogger("association")
	}
	return d, nil
}

// Pool returns the association pool.
func (d *Dispatcher) Pool() *Pool {
	return d.pool
}

// Dispatch processes one APDU received on sess and writes the response
// into out.
func (d *Dispatcher) Dispatch(sess Session, apdu, out []byte) Result {
	if len(apdu) == 0 || len(out) == 0 {
		d.drop(sess, "empty buffer")
		return Result{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch acse.Classify(apdu) {
	case acse.KindAARQ:
		return Result{N: d.handleAARQ(sess, apdu, out)}
	case acse.KindRLRQ:
		return Result{N: d.handleRLRQ(sess, out)}
	default:
		return d.handleData(sess, apdu, out)
	}
}

func (d *Dispatcher) handleAARQ(sess Session, apdu, out []byte) int {
	capability, ok := d.cfg.Registry.Lookup(sess.LogicalDevice)
	if !ok {
		d.drop(sess, ErrUnknownLogicalDevice.Error())
		return 0
	}

	fc, err := crypto.SeedFrameCounter(d.cfg.Random)
	if err != nil {
		d.drop(sess, err.Error())
		return 0
	}

	c := newContext(sess, capability, d.cfg.Keys, fc)
	if err := d.pool.Replace(c); err != nil {
		c.zeroizeKeys()
		d.drop(sess, err.Error())
		return 0
	}
	return d.associate(c, apdu, out)
}

func (d *Dispatcher) handleRLRQ(sess Session, out []byte) int {
	if d.pool.Find(sess) == nil {
		d.drop(sess, "release without association")
		return 0
	}
	d.pool.Remove(sess)
	if d.log != nil {
		d.log.Debugf("released ld=0x%04X session=%d", sess.LogicalDevice, sess.ID)
	}
	return acse.EncodeRLRE(out)
}

func (d *Dispatcher) handleData(sess Session, apdu, out []byte) Result {
	c := d.pool.Find(sess)
	if c == nil {
		d.drop(sess, ErrNoContext.Error())
		return Result{}
	}
	if c.status == StatusNonAssociated {
		d.drop(sess, ErrNotAssociated.Error())
		return Result{}
	}
	if d.cfg.Handler == nil {
		d.drop(sess, "no application handler")
		return Result{}
	}

	h := newHandle(c)
	n := d.cfg.Handler.HandleAPDU(h, apdu, out)
	refresh := h.refresh
	h.invalidate()

	if n < 0 || n > len(out) {
		n = 0
	}
	return Result{N: n, RefreshKeys: refresh}
}

// Cleanup destroys the association of sess, typically when its transport
// session closes. Reports whether one existed.
func (d *Dispatcher) Cleanup(sess Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool.Remove(sess)
}

// RefreshKeys reloads the keys of every high-level association, pending or
// established.
func (d *Dispatcher) RefreshKeys() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pool.Each(func(c *Context) {
		if c.needsKeyRefresh() {
			c.loadKeys(d.cfg.Keys)
		}
	})
	if d.log != nil {
		d.log.Debug("keys refreshed")
	}
}

// Status returns the association status of sess.
func (d *Dispatcher) Status(sess Session) (Status, AccessLevel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.pool.Find(sess)
	if c == nil {
		return StatusNonAssociated, AccessNone
	}
	return c.status, c.level
}

func (d *Dispatcher) drop(sess Session, reason string) {
	if d.log != nil {
		d.log.Warnf("dropped APDU ld=0x%04X session=%d: %s", sess.LogicalDevice, sess.ID, reason)
	}
}
