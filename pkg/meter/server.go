package meter

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/backkem/dlms/pkg/apdulog"
	"github.com/backkem/dlms/pkg/association"
	"github.com/backkem/dlms/pkg/discovery"
	"github.com/backkem/dlms/pkg/transport"
	"github.com/backkem/dlms/pkg/xdlms"
	"github.com/pion/logging"
)

// Server is a DLMS/COSEM server endpoint. It accepts wrapped APDUs over
// TCP and UDP, runs association control for the registered logical
// devices and hands established traffic to the application handler.
type Server struct {
	config ServerConfig
	state  ServerState
	log    logging.LeveledLogger

	dispatcher   *association.Dispatcher
	transportMgr *transport.Manager
	discoveryMgr *discovery.Manager

	sessions *sessionTable
	connIDs  *apdulog.ConnectionIDs
	bufSize  int

	mu sync.RWMutex

	// Context for background operations
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server. It is created but not started; call Start()
// to begin serving.
func NewServer(config ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if config.Handler == nil {
		config.Handler = NewHLSHandler(config.Keys, nil, config.Random, config.LoggerFactory)
	}

	s := &Server{
		config:   config,
		state:    ServerStateUninitialized,
		sessions: newSessionTable(config.MaxConnections),
		connIDs:  apdulog.NewConnectionIDs(),
		bufSize:  max(int(config.MaxPDU), xdlms.DefaultMaxPDU),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("meter")
	}

	d, err := association.NewDispatcher(association.Config{
		Registry:      config.Registry,
		Keys:          config.Keys,
		Handler:       config.Handler,
		Capacity:      config.Capacity,
		MaxPDU:        config.MaxPDU,
		Random:        config.Random,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher = d

	s.state = ServerStateInitialized
	return s, nil
}

// Start opens the transports and begins advertising, if configured.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanStart() {
		if s.state.IsRunning() {
			return ErrAlreadyStarted
		}
		return ErrNotInitialized
	}

	s.state = ServerStateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startTransport(); err != nil {
		s.cancel()
		s.state = ServerStateInitialized
		return err
	}

	if err := s.startDiscovery(); err != nil {
		s.stopTransport()
		s.cancel()
		s.state = ServerStateInitialized
		return err
	}

	s.state = ServerStateRunning
	if s.log != nil {
		s.log.Infof("server started on %s, %d logical devices", s.config.ListenAddr, s.config.Registry.Len())
	}
	if s.config.OnStateChanged != nil {
		s.config.OnStateChanged(s.state)
	}
	return nil
}

// startTransport initializes the transport layer.
func (s *Server) startTransport() error {
	var udpConn net.PacketConn
	var tcpListener net.Listener
	var err error

	if s.config.TransportFactory != nil {
		// Use injected transport (for testing)
		if s.config.UDPEnabled {
			udpConn, err = s.config.TransportFactory.CreateUDPConn(s.config.port())
			if err != nil {
				return err
			}
		}
		if s.config.TCPEnabled {
			tcpListener, err = s.config.TransportFactory.CreateTCPListener(s.config.port())
			if err != nil {
				if udpConn != nil {
					udpConn.Close()
				}
				return err
			}
		}
	}

	s.transportMgr, err = transport.NewManager(transport.ManagerConfig{
		ListenAddr:     s.config.ListenAddr,
		UDPEnabled:     s.config.UDPEnabled,
		TCPEnabled:     s.config.TCPEnabled,
		UDPConn:        udpConn,
		TCPListener:    tcpListener,
		MessageHandler: s.handleMessage,
		CloseHandler:   s.handleClose,
		MaxUDPPeers:    s.config.MaxConnections,
		LoggerFactory:  s.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	return s.transportMgr.Start()
}

// stopTransport shuts down the transport layer.
func (s *Server) stopTransport() {
	if s.transportMgr != nil {
		s.transportMgr.Stop()
	}
}

// startDiscovery advertises the meter on the enabled transports.
func (s *Server) startDiscovery() error {
	dc := s.config.Discovery
	if dc == nil {
		return nil
	}

	mgr, err := discovery.NewManager(discovery.ManagerConfig{
		Port:          s.config.port(),
		ServerFactory: dc.ServerFactory,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		return err
	}

	var types []discovery.ServiceType
	if s.config.TCPEnabled {
		types = append(types, discovery.ServiceTypeStream)
	}
	if s.config.UDPEnabled {
		types = append(types, discovery.ServiceTypeDatagram)
	}
	if err := mgr.Advertise(s.meterTXT(), types...); err != nil {
		mgr.Close()
		return err
	}
	s.discoveryMgr = mgr
	return nil
}

// stopDiscovery withdraws the advertisements.
func (s *Server) stopDiscovery() {
	if s.discoveryMgr != nil {
		s.discoveryMgr.Close()
		s.discoveryMgr = nil
	}
}

// meterTXT describes the registered logical devices for DNS-SD.
func (s *Server) meterTXT() discovery.MeterTXT {
	txt := discovery.MeterTXT{
		SystemTitle:  s.config.Discovery.SystemTitle,
		Manufacturer: s.config.Discovery.Manufacturer,
		MaxPDU:       s.config.MaxPDU,
	}
	for _, d := range s.config.Registry.Descriptors() {
		txt.LogicalDevices = append(txt.LogicalDevices, d.LogicalDevice)
		txt.Suit |= d.Suit
	}
	return txt
}

// Stop shuts the server down, releasing every association.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanStop() {
		if s.state == ServerStateStopped {
			return ErrAlreadyStopped
		}
		return ErrNotStarted
	}

	s.state = ServerStateStopping

	s.stopDiscovery()
	s.stopTransport()
	for _, conn := range s.sessions.connections() {
		s.handleClose(conn)
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.state = ServerStateStopped
	if s.log != nil {
		s.log.Info("server stopped")
	}
	if s.config.OnStateChanged != nil {
		s.config.OnStateChanged(s.state)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatcher returns the association dispatcher.
func (s *Server) Dispatcher() *association.Dispatcher {
	return s.dispatcher
}

// LocalAddresses returns the bound transport addresses while running.
func (s *Server) LocalAddresses() []net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.IsRunning() || s.transportMgr == nil {
		return nil
	}
	return s.transportMgr.LocalAddresses()
}

// Status returns the association status of the client on connection conn
// addressing logicalDevice.
func (s *Server) Status(conn uint32, client, logicalDevice uint16) (association.Status, association.AccessLevel) {
	id, ok := s.sessions.lookup(conn, client)
	if !ok {
		return association.StatusNonAssociated, association.AccessNone
	}
	return s.dispatcher.Status(association.Session{LogicalDevice: logicalDevice, ID: id})
}

// handleMessage runs one received APDU through the dispatcher and sends
// the response, if any, back to the peer.
func (s *Server) handleMessage(msg *transport.ReceivedMessage) {
	if _, ok := s.config.Registry.Lookup(msg.Frame.Destination); !ok {
		if s.log != nil {
			s.log.Warnf("dropped APDU from %s: unknown logical device 0x%04X", msg.PeerAddr, msg.Frame.Destination)
		}
		return
	}

	sess, evicted := s.sessions.bind(msg.ConnID, msg.Frame.Source, msg.Frame.Destination)
	if evicted != nil {
		if s.log != nil {
			s.log.Debugf("session table full, releasing conn=%d", evicted.conn)
		}
		s.cleanup(evicted.conn, evicted.sessions)
	}
	s.trace(msg, apdulog.DirectionIn, msg.Frame.APDU)

	out := make([]byte, s.bufSize)
	res := s.dispatcher.Dispatch(sess, msg.Frame.APDU, out)
	if res.RefreshKeys {
		s.dispatcher.RefreshKeys()
	}
	if res.N == 0 {
		return
	}

	reply := msg.Frame.Reply(out[:res.N])
	s.trace(msg, apdulog.DirectionOut, reply.APDU)
	if err := s.transportMgr.Send(reply, msg.PeerAddr); err != nil && s.log != nil {
		s.log.Warnf("send to %s failed: %v", msg.PeerAddr, err)
	}
}

// handleClose destroys the associations of a closed connection.
func (s *Server) handleClose(conn uint32) {
	s.cleanup(conn, s.sessions.release(conn))
}

// cleanup drops the associations a released connection addressed.
func (s *Server) cleanup(conn uint32, sessions []association.Session) {
	for _, sess := range sessions {
		if s.dispatcher.Cleanup(sess) && s.log != nil {
			s.log.Debugf("association ld=0x%04X session=%d cleaned up", sess.LogicalDevice, sess.ID)
		}
	}
	s.connIDs.Forget(conn)
}

func (s *Server) trace(msg *transport.ReceivedMessage, dir apdulog.Direction, apdu []byte) {
	r := apdulog.Record{
		Timestamp:     time.Now(),
		ConnectionID:  s.connIDs.Get(msg.ConnID),
		Direction:     dir,
		Transport:     strings.ToLower(msg.PeerAddr.TransportType.String()),
		LogicalDevice: msg.Frame.Destination,
		Client:        msg.Frame.Source,
		APDU:          apdu,
	}
	if msg.PeerAddr.Addr != nil {
		r.RemoteAddr = msg.PeerAddr.Addr.String()
	}
	s.config.Trace.Log(r)
}
