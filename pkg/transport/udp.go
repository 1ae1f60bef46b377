package transport

import (
	"container/list"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// DefaultMaxPeers is the number of UDP peers remembered when
// UDPConfig.MaxPeers is zero.
const DefaultMaxPeers = 1024

// UDP carries wrapped APDUs over UDP, one frame per datagram. Each remote
// address is given a ConnID on its first datagram. UDP has no close event,
// so the least recently heard peer is forgotten once MaxPeers is reached
// and the CloseHandler runs for its ConnID.
type UDP struct {
	conn     net.PacketConn
	handler  MessageHandler
	onClose  CloseHandler
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger
	nextID   *atomic.Uint32
	maxPeers int

	peersMu sync.Mutex
	peers   map[string]*list.Element
	recency *list.List // of *udpPeer, front = most recent

	mu      sync.RWMutex
	started bool
	closed  bool
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":4059").
	// Ignored if Conn is provided.
	ListenAddr string

	// MessageHandler is called for each received frame.
	// Required.
	MessageHandler MessageHandler

	// CloseHandler is called with the ConnID of an evicted peer. Optional.
	CloseHandler CloseHandler

	// MaxPeers bounds the remembered peers (default: DefaultMaxPeers).
	MaxPeers int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	connIDs *atomic.Uint32
}

// NewUDP creates a new UDP transport with the given configuration.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	u := &UDP{
		conn:     config.Conn,
		handler:  config.MessageHandler,
		onClose:  config.CloseHandler,
		closeCh:  make(chan struct{}),
		peers:    make(map[string]*list.Element),
		recency:  list.New(),
		nextID:   config.connIDs,
		maxPeers: config.MaxPeers,
	}
	if u.nextID == nil {
		u.nextID = new(atomic.Uint32)
	}
	if u.maxPeers <= 0 {
		u.maxPeers = DefaultMaxPeers
	}

	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("transport-udp")
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	u.started = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Infof("starting UDP transport on %s", u.conn.LocalAddr())
	}

	u.wg.Add(1)
	go u.readLoop()

	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	if u.log != nil {
		u.log.Info("stopping UDP transport")
	}

	close(u.closeCh)

	// Unblock any pending read.
	u.conn.SetReadDeadline(time.Now())
	u.conn.Close()
	u.wg.Wait()

	return nil
}

// Send writes one frame to addr.
func (u *UDP) Send(f Frame, addr net.Addr) error {
	u.mu.RLock()
	if u.closed {
		u.mu.RUnlock()
		return ErrClosed
	}
	u.mu.RUnlock()

	if addr == nil {
		return ErrInvalidAddress
	}

	b, err := f.Marshal()
	if err != nil {
		return err
	}

	if u.log != nil {
		u.log.Debugf("sending %s to %v", f, addr)
	}

	if _, err := u.conn.WriteTo(b, addr); err != nil {
		if u.log != nil {
			u.log.Warnf("send failed: %v", err)
		}
		return err
	}
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Peers returns the number of remembered peers.
func (u *UDP) Peers() int {
	u.peersMu.Lock()
	defer u.peersMu.Unlock()
	return u.recency.Len()
}

type udpPeer struct {
	key string
	id  uint32
}

// connID returns the ConnID of addr and, when remembering addr pushed out
// the least recent peer, that peer's ConnID.
func (u *UDP) connID(addr net.Addr) (id uint32, evicted uint32, ok bool) {
	key := addr.String()

	u.peersMu.Lock()
	defer u.peersMu.Unlock()
	if e, found := u.peers[key]; found {
		u.recency.MoveToFront(e)
		return e.Value.(*udpPeer).id, 0, false
	}

	if u.recency.Len() >= u.maxPeers {
		if oldest := u.recency.Back(); oldest != nil {
			p := u.recency.Remove(oldest).(*udpPeer)
			delete(u.peers, p.key)
			evicted, ok = p.id, true
		}
	}
	id = u.nextID.Add(1)
	u.peers[key] = u.recency.PushFront(&udpPeer{key: key, id: id})
	return id, evicted, ok
}

func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, MaxFrameSize)

	for {
		select {
		case <-u.closeCh:
			return
		default:
		}

		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				if u.log != nil {
					u.log.Warnf("UDP read error: %v", err)
				}
				continue
			}
		}

		if n == 0 {
			continue
		}

		f, err := ParseFrame(buf[:n])
		if err != nil {
			if u.log != nil {
				u.log.Warnf("dropping datagram from %v: %v", addr, err)
			}
			continue
		}
		// The frame aliases the read buffer.
		f.APDU = append([]byte(nil), f.APDU...)

		if u.log != nil {
			u.log.Debugf("received %s from %v", f, addr)
		}

		id, evicted, ok := u.connID(addr)
		if ok {
			if u.log != nil {
				u.log.Debugf("forgetting UDP peer conn=%d", evicted)
			}
			if u.onClose != nil {
				u.onClose(evicted)
			}
		}

		u.handler(&ReceivedMessage{
			Frame:    f,
			PeerAddr: NewUDPPeerAddress(addr),
			ConnID:   id,
		})
	}
}
