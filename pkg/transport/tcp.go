package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// TCP carries wrapped APDUs over TCP. Frames are delimited by the wrapper
// length field; each accepted connection gets its own ConnID.
type TCP struct {
	listener net.Listener
	handler  MessageHandler
	onClose  CloseHandler
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger
	nextID   *atomic.Uint32

	// Connection tracking
	connsMu sync.RWMutex
	conns   map[string]*tcpConn // Key: remote address string

	mu      sync.RWMutex
	started bool
	closed  bool
}

type tcpConn struct {
	id     uint32
	conn   net.Conn
	reader *StreamReader
	writer *StreamWriter
	mu     sync.Mutex // Protects writes
}

// TCPConfig configures the TCP transport.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":4059").
	// Ignored if Listener is provided.
	ListenAddr string

	// MessageHandler is called for each received frame.
	// Required.
	MessageHandler MessageHandler

	// CloseHandler is called when a connection closes. Optional.
	CloseHandler CloseHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	connIDs *atomic.Uint32
}

// NewTCP creates a new TCP transport with the given configuration.
func NewTCP(config TCPConfig) (*TCP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	t := &TCP{
		listener: config.Listener,
		handler:  config.MessageHandler,
		onClose:  config.CloseHandler,
		closeCh:  make(chan struct{}),
		conns:    make(map[string]*tcpConn),
		nextID:   config.connIDs,
	}
	if t.nextID == nil {
		t.nextID = new(atomic.Uint32)
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections and receiving frames.
func (t *TCP) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("starting TCP transport on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes all connections and the listener.
func (t *TCP) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP transport")
	}

	close(t.closeCh)
	t.listener.Close()

	t.connsMu.Lock()
	for _, tc := range t.conns {
		tc.conn.Close()
	}
	t.connsMu.Unlock()

	t.wg.Wait()
	return nil
}

// Send writes a frame on the connection to addr. Only connections that are
// already established (accepted or added) can be written to.
func (t *TCP) Send(f Frame, addr net.Addr) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	t.mu.RUnlock()

	if addr == nil {
		return ErrInvalidAddress
	}

	t.connsMu.RLock()
	tc, ok := t.conns[addr.String()]
	t.connsMu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.writer.WriteFrame(f)
}

// LocalAddr returns the local address the transport is listening on.
func (t *TCP) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// Connections returns the number of open connections.
func (t *TCP) Connections() int {
	t.connsMu.RLock()
	defer t.connsMu.RUnlock()
	return len(t.conns)
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		t.AddConnection(conn)
	}
}

// AddConnection serves an established connection, for example one end of
// an in-memory pipe.
func (t *TCP) AddConnection(conn net.Conn) {
	tc := &tcpConn{
		id:     t.nextID.Add(1),
		conn:   conn,
		reader: NewStreamReader(conn),
		writer: NewStreamWriter(conn),
	}

	remoteAddr := conn.RemoteAddr().String()
	t.connsMu.Lock()
	t.conns[remoteAddr] = tc
	t.connsMu.Unlock()

	if t.log != nil {
		t.log.Debugf("connection %d from %s", tc.id, remoteAddr)
	}

	t.wg.Add(1)
	go t.handleConn(tc, remoteAddr)
}

func (t *TCP) handleConn(tc *tcpConn, remoteAddr string) {
	defer t.wg.Done()

	defer func() {
		tc.conn.Close()
		t.connsMu.Lock()
		delete(t.conns, remoteAddr)
		t.connsMu.Unlock()
		if t.onClose != nil {
			t.onClose(tc.id)
		}
	}()

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		f, err := tc.reader.ReadFrame()
		if err != nil {
			if err != io.EOF && t.log != nil {
				select {
				case <-t.closeCh:
				default:
					t.log.Warnf("connection %d: %v", tc.id, err)
				}
			}
			return
		}

		t.handler(&ReceivedMessage{
			Frame:    f,
			PeerAddr: NewTCPPeerAddress(tc.conn.RemoteAddr()),
			ConnID:   tc.id,
		})
	}
}
