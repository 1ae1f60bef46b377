package keys

import (
	"bytes"
	"sync"
)

type entryKey struct {
	kind Kind
	ref  Ref
}

// MemoryStore is an in-memory Store. Values are lost when the process exits.
//
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[entryKey][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[entryKey][]byte)}
}

// Set stores a copy of value for (kind, ref).
func (m *MemoryStore) Set(kind Kind, ref Ref, value []byte) error {
	if err := kind.validate(value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey{kind, ref}] = bytes.Clone(value)
	return nil
}

// SetDevice stores value for every session of a logical device.
func (m *MemoryStore) SetDevice(kind Kind, logicalDevice uint16, value []byte) error {
	return m.Set(kind, Ref{LogicalDevice: logicalDevice, Session: AllSessions}, value)
}

// Delete removes the value stored for (kind, ref).
func (m *MemoryStore) Delete(kind Kind, ref Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, entryKey{kind, ref})
}

// Lookup returns a copy of the value stored for (kind, ref).
func (m *MemoryStore) Lookup(kind Kind, ref Ref) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[entryKey{kind, ref}]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Len returns the number of stored values.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
