package apdulog

import (
	"sync"

	"github.com/google/uuid"
)

// ConnectionIDs maps transport connection numbers to stable UUIDs, so
// traces stay unambiguous across server restarts that reuse numbers.
type ConnectionIDs struct {
	mu  sync.Mutex
	ids map[uint32]string
}

// NewConnectionIDs creates an empty mapping.
func NewConnectionIDs() *ConnectionIDs {
	return &ConnectionIDs{ids: make(map[uint32]string)}
}

// Get returns the UUID of conn, assigning a new one on first use.
func (c *ConnectionIDs) Get(conn uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.ids[conn]
	if !ok {
		id = uuid.New().String()
		c.ids[conn] = id
	}
	return id
}

// Forget drops the UUID of conn; the next Get assigns a fresh one.
func (c *ConnectionIDs) Forget(conn uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, conn)
}

// Len returns the number of tracked connections.
func (c *ConnectionIDs) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
