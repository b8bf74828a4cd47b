package chat

import (
	"sync"

	"privchat/internal/metrics"
)

// Registry tracks which users have live websocket connections. A user may
// hold several connections at once (multiple devices); each is keyed by a
// per-connection id under the user's entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]chan<- []byte
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]chan<- []byte),
	}
}

// Register adds a connection's outbound channel under the user. Registering
// the same connID twice replaces the previous channel.
func (r *Registry) Register(userID, connID string, send chan<- []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byConn, ok := r.conns[userID]
	if !ok {
		byConn = make(map[string]chan<- []byte)
		r.conns[userID] = byConn
	}
	if _, replaced := byConn[connID]; !replaced {
		metrics.OpenConnections.Inc()
	}
	byConn[connID] = send
}

// Unregister removes one connection. The user's entry disappears when the
// last connection goes.
func (r *Registry) Unregister(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byConn, ok := r.conns[userID]
	if !ok {
		return
	}
	if _, exists := byConn[connID]; !exists {
		return
	}
	delete(byConn, connID)
	metrics.OpenConnections.Dec()
	if len(byConn) == 0 {
		delete(r.conns, userID)
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// ConnectionCount returns the number of live connections for the user.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// SendToUser offers frame to every connection of the user without blocking.
// A connection whose buffer is full is skipped. Returns the number of
// connections that accepted the frame.
func (r *Registry) SendToUser(userID string, frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, send := range r.conns[userID] {
		select {
		case send <- frame:
			delivered++
		default:
		}
	}
	return delivered
}

// BroadcastToUsers fans frame out to every listed user. Duplicate ids in
// userIDs send duplicate frames; callers pass de-duplicated sets.
func (r *Registry) BroadcastToUsers(userIDs []string, frame []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, userID := range userIDs {
		for _, send := range r.conns[userID] {
			select {
			case send <- frame:
				delivered++
			default:
			}
		}
	}
	return delivered
}
