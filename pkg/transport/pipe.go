package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Factory creates the connections a transport listens on. Implementations
// return real sockets or in-memory pipes.
type Factory interface {
	CreateUDPConn(port int) (net.PacketConn, error)
	CreateTCPListener(port int) (net.Listener, error)
}

// NetworkCondition simulates an imperfect link on a Pipe.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DelayMin and DelayMax bound a uniformly distributed per-write delay.
	DelayMin time.Duration
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess delivers queued packets from a background goroutine.
	AutoProcess bool

	// ProcessInterval is the delivery tick (default 1ms).
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns a configuration with auto-processing enabled.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{AutoProcess: true, ProcessInterval: time.Millisecond}
}

// Pipe is a bidirectional in-memory link between two endpoints built on
// pion's test.Bridge. Each Write is delivered to the peer as one Read.
type Pipe struct {
	bridge *test.Bridge

	mu              sync.RWMutex
	condition       NetworkCondition
	rng             *rand.Rand
	closed          bool
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = time.Millisecond
	}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetCondition configures link simulation for both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Conn returns the connection of endpoint id (0 or 1).
func (p *Pipe) Conn(id int) net.Conn {
	if id == 0 {
		return p.bridge.GetConn0()
	}
	return p.bridge.GetConn1()
}

// Process delivers every queued packet and returns how many were delivered.
// Only needed when auto-processing is disabled.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.bridge.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close stops auto-processing and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// impair applies the configured condition to one write. It reports whether
// the write should be dropped.
func (p *Pipe) impair() bool {
	p.mu.RLock()
	cond := p.condition
	p.mu.RUnlock()

	if cond.DropRate > 0 {
		p.mu.Lock()
		drop := p.rng.Float64() < cond.DropRate
		p.mu.Unlock()
		if drop {
			return true
		}
	}
	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			p.mu.Lock()
			delay += time.Duration(p.rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
			p.mu.Unlock()
		}
		time.Sleep(delay)
	}
	return false
}

// PipeAddr is the address of a pipe endpoint.
type PipeAddr struct {
	ID   int
	Port int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PipePacketConn exposes a pipe endpoint as a net.PacketConn with a single
// peer.
type PipePacketConn struct {
	conn  net.Conn
	local PipeAddr
	peer  PipeAddr
	pipe  *Pipe
}

var _ net.PacketConn = (*PipePacketConn)(nil)

// ReadFrom reads one datagram from the peer.
func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

// WriteTo writes one datagram to the peer; addr is ignored.
func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	if c.pipe.impair() {
		return len(b), nil
	}
	return c.conn.Write(b)
}

func (c *PipePacketConn) Close() error                       { return c.conn.Close() }
func (c *PipePacketConn) LocalAddr() net.Addr                { return c.local }
func (c *PipePacketConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *PipePacketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// PipeConn is a pipe endpoint with pipe addresses, usable as a stream
// connection as long as every frame is read with the sizes it was written
// with (which StreamReader and StreamWriter do).
type PipeConn struct {
	net.Conn
	local  PipeAddr
	remote PipeAddr
}

var _ net.Conn = (*PipeConn)(nil)

func (c *PipeConn) LocalAddr() net.Addr  { return c.local }
func (c *PipeConn) RemoteAddr() net.Addr { return c.remote }

// PipeListener accepts the single connection of a pipe endpoint.
type PipeListener struct {
	conn    *PipeConn
	closeCh chan struct{}

	mu       sync.Mutex
	accepted bool
	closed   bool
}

var _ net.Listener = (*PipeListener)(nil)

// Accept returns the pipe connection once, then blocks until Close.
func (l *PipeListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, net.ErrClosed
	}
	if !l.accepted {
		l.accepted = true
		l.mu.Unlock()
		return l.conn, nil
	}
	l.mu.Unlock()

	<-l.closeCh
	return nil, net.ErrClosed
}

// Close closes the listener. The accepted connection stays open.
func (l *PipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.closeCh)
	}
	return nil
}

// Addr returns the listener address.
func (l *PipeListener) Addr() net.Addr { return l.conn.local }

// PipeFactory hands out one side of a Pipe as packet connection, listener
// or client connection.
type PipeFactory struct {
	pipe *Pipe
	id   int
}

var _ Factory = (*PipeFactory)(nil)

// NewPipeFactoryPair creates two factories on a new auto-processing pipe.
func NewPipeFactoryPair() (*PipeFactory, *PipeFactory) {
	pipe := NewPipe()
	return &PipeFactory{pipe: pipe, id: 0}, &PipeFactory{pipe: pipe, id: 1}
}

// Pipe returns the underlying pipe.
func (f *PipeFactory) Pipe() *Pipe {
	return f.pipe
}

func (f *PipeFactory) addrs(port int) (local, peer PipeAddr) {
	return PipeAddr{ID: f.id, Port: port}, PipeAddr{ID: 1 - f.id, Port: port}
}

// CreateUDPConn returns this side of the pipe as a packet connection.
func (f *PipeFactory) CreateUDPConn(port int) (net.PacketConn, error) {
	local, peer := f.addrs(port)
	return &PipePacketConn{conn: f.pipe.Conn(f.id), local: local, peer: peer, pipe: f.pipe}, nil
}

// CreateTCPListener returns a listener accepting this side of the pipe.
func (f *PipeFactory) CreateTCPListener(port int) (net.Listener, error) {
	return &PipeListener{conn: f.Conn(port), closeCh: make(chan struct{})}, nil
}

// Conn returns this side of the pipe as a client connection.
func (f *PipeFactory) Conn(port int) *PipeConn {
	local, peer := f.addrs(port)
	return &PipeConn{Conn: f.pipe.Conn(f.id), local: local, remote: peer}
}
