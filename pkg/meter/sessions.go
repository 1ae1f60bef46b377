package meter

import (
	"container/list"
	"sync"

	"github.com/backkem/dlms/pkg/association"
)

// DefaultMaxConnections is the number of transport connections tracked at
// once when ServerConfig.MaxConnections is zero.
const DefaultMaxConnections = 1024

// sessionKey identifies a client on a transport connection.
type sessionKey struct {
	conn   uint32
	client uint16
}

// boundConn is a tracked connection and the associations it addressed.
type boundConn struct {
	conn     uint32
	sessions map[association.Session]struct{}
}

// releasedConn is a connection the table let go of.
type releasedConn struct {
	conn     uint32
	sessions []association.Session
}

// sessionTable maps (connection, client wPort) pairs to transport session
// handles and remembers which associations each connection addressed, so
// they can be cleaned up when it goes away. At most max connections are
// tracked; binding one more releases the least recently used.
type sessionTable struct {
	mu      sync.Mutex
	next    uint32
	max     int
	ids     map[sessionKey]uint32
	conns   map[uint32]*list.Element
	recency *list.List // of *boundConn, front = most recent
}

func newSessionTable(maxConns int) *sessionTable {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	return &sessionTable{
		max:     maxConns,
		ids:     make(map[sessionKey]uint32),
		conns:   make(map[uint32]*list.Element),
		recency: list.New(),
	}
}

// bind returns the session for a frame from client to logicalDevice on
// conn. When tracking conn pushed another connection out, that connection
// is returned for cleanup.
func (t *sessionTable) bind(conn uint32, client, logicalDevice uint16) (association.Session, *releasedConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted *releasedConn
	e, ok := t.conns[conn]
	if ok {
		t.recency.MoveToFront(e)
	} else {
		if t.recency.Len() >= t.max {
			evicted = t.releaseLocked(t.recency.Back().Value.(*boundConn).conn)
		}
		e = t.recency.PushFront(&boundConn{conn: conn, sessions: make(map[association.Session]struct{})})
		t.conns[conn] = e
	}

	key := sessionKey{conn: conn, client: client}
	id, ok := t.ids[key]
	if !ok {
		t.next++
		if t.next == 0 {
			t.next = 1
		}
		id = t.next
		t.ids[key] = id
	}

	sess := association.Session{LogicalDevice: logicalDevice, ID: id}
	e.Value.(*boundConn).sessions[sess] = struct{}{}
	return sess, evicted
}

// lookup returns the session id of client on conn.
func (t *sessionTable) lookup(conn uint32, client uint16) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[sessionKey{conn: conn, client: client}]
	return id, ok
}

// release forgets conn and returns the sessions it addressed.
func (t *sessionTable) release(conn uint32) []association.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.releaseLocked(conn).sessions
}

func (t *sessionTable) releaseLocked(conn uint32) *releasedConn {
	r := &releasedConn{conn: conn}
	e, ok := t.conns[conn]
	if !ok {
		return r
	}
	b := t.recency.Remove(e).(*boundConn)
	delete(t.conns, conn)
	for key := range t.ids {
		if key.conn == conn {
			delete(t.ids, key)
		}
	}

	r.sessions = make([]association.Session, 0, len(b.sessions))
	for sess := range b.sessions {
		r.sessions = append(r.sessions, sess)
	}
	return r
}

// connections returns the tracked connections, most recent first.
func (t *sessionTable) connections() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := make([]uint32, 0, t.recency.Len())
	for e := t.recency.Front(); e != nil; e = e.Next() {
		conns = append(conns, e.Value.(*boundConn).conn)
	}
	return conns
}

// len returns the number of (connection, client) pairs with a session id.
func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
