package server

import (
	"sync"

	"github.com/fenggwsx/PairChat/internal/protocol"
)

// ConnHub tracks live connections and dispatches envelopes to them.
type ConnHub struct {
	mu    sync.RWMutex
	conns map[string]chan protocol.Envelope
}

// NewConnHub initializes an empty hub.
func NewConnHub() *ConnHub {
	return &ConnHub{
		conns: make(map[string]chan protocol.Envelope),
	}
}

// Register registers the outbound channel of a connection.
func (h *ConnHub) Register(connID string, ch chan protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = ch
}

// Unregister removes the connection if present. Once it returns, the hub
// no longer writes to the connection's channel.
func (h *ConnHub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
}

// Send queues env for connID. It reports false when the connection is gone
// or its buffer is full.
func (h *ConnHub) Send(connID string, env protocol.Envelope) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.conns[connID]
	if !ok {
		return false
	}
	select {
	case ch <- env:
		return true
	default:
		return false
	}
}

// Broadcast queues env for every connection, skipping saturated ones.
func (h *ConnHub) Broadcast(env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.conns {
		select {
		case ch <- env:
		default:
		}
	}
}

// Len returns the number of registered connections.
func (h *ConnHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
