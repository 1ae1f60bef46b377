package association

import "sync"

// DefaultCapacity is the default number of concurrent associations.
const DefaultCapacity = 8

// Pool is a bounded set of association contexts keyed by session. At most
// one context exists per (logical device, session) pair.
type Pool struct {
	contexts map[Session]*Context
	capacity int

	mu sync.RWMutex
}

// NewPool creates a pool holding up to capacity contexts (0 uses
// DefaultCapacity).
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		contexts: make(map[Session]*Context, capacity),
		capacity: capacity,
	}
}

// Find returns the context for sess, or nil.
func (p *Pool) Find(sess Session) *Context {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.contexts[sess]
}

// Replace stores c, destroying any previous context for the same session.
// Returns ErrPoolFull when c would occupy a new slot in a full pool.
func (p *Pool) Replace(c *Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, exists := p.contexts[c.session]; exists {
		old.zeroizeKeys()
	} else if len(p.contexts) >= p.capacity {
		return ErrPoolFull
	}
	p.contexts[c.session] = c
	return nil
}

// Remove destroys the context for sess. Reports whether one existed.
func (p *Pool) Remove(sess Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, exists := p.contexts[sess]
	if !exists {
		return false
	}
	c.zeroizeKeys()
	delete(p.contexts, sess)
	return true
}

// Each calls fn for every context in the pool.
func (p *Pool) Each(fn func(*Context)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.contexts {
		fn(c)
	}
}

// Len returns the number of live contexts.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.contexts)
}

// Capacity returns the maximum number of contexts.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Clear destroys every context.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sess, c := range p.contexts {
		c.zeroizeKeys()
		delete(p.contexts, sess)
	}
}
