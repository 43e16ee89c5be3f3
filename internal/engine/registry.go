package engine

import "sync"

// Connection is the outbound half of a connected peer, provided by the
// transport layer. Send must not block indefinitely; delivery is
// best-effort and never retried here.
type Connection interface {
	Send(msg []byte) error
	// IsOpen reports whether the underlying transport still accepts writes.
	// Closed connections are silently skipped during broadcast.
	IsOpen() bool
}

// Registry tracks live connections. Connections are added when the
// transport reports them open and removed on close or error; no delivery is
// attempted after removal.
type Registry struct {
	mu    sync.Mutex
	conns map[Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[Connection]struct{})}
}

// Add registers a connection.
func (r *Registry) Add(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// Remove deregisters a connection. Removing an unknown connection is a
// no-op.
func (r *Registry) Remove(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

// List returns a snapshot of the current connections.
func (r *Registry) List() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Connection, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
