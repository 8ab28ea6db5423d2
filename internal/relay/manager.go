// ABOUTME: Registry of connected admin consoles, keyed by operator id.
// ABOUTME: Handles last-wins registration, unconditional removal, and frame fan-out.

package relay

import (
	"log/slog"
	"sync"
)

// Conn is the transport-level handle a registered operator is reachable on.
// *Operator implements it; tests substitute their own.
type Conn interface {
	Send(frame []byte) error
	Close()
}

type registration struct {
	connID string
	conn   Conn
}

// Manager coordinates all registered operators for one platform's relay
// server and fans outbound frames out to them.
type Manager struct {
	mu        sync.RWMutex
	operators map[string]registration
	logger    *slog.Logger
}

// NewManager creates an empty operator registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		operators: make(map[string]registration),
		logger:    logger.With("component", "operator-registry"),
	}
}

// Register binds an admin id to a connection handle. Re-registering the
// same admin id replaces the prior handle, which is closed; the newest
// connection always wins.
func (m *Manager) Register(adminID, connID string, conn Conn) {
	m.mu.Lock()
	prior, replaced := m.operators[adminID]
	m.operators[adminID] = registration{connID: connID, conn: conn}
	total := len(m.operators)
	m.mu.Unlock()

	if replaced && prior.connID != connID {
		prior.conn.Close()
	}

	m.logger.Info("operator registered",
		"admin_id", adminID,
		"connection_id", connID,
		"replaced", replaced,
		"total_operators", total,
	)
}

// Unregister removes the admin's entry, but only while it is still bound to
// the given connection. A stale disconnect arriving after a reconnect has
// replaced the handle must not evict the replacement.
func (m *Manager) Unregister(adminID, connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.operators[adminID]
	if !ok || current.connID != connID {
		return false
	}
	delete(m.operators, adminID)

	m.logger.Info("operator unregistered",
		"admin_id", adminID,
		"connection_id", connID,
		"total_operators", len(m.operators),
	)
	return true
}

// Broadcast fans a frame out to every registered operator. Handles are
// snapshotted under the lock and written to independently, so one failed or
// slow connection never blocks or fails delivery to the others. A failed
// handle is reaped by its own disconnect path, never here.
func (m *Manager) Broadcast(frame []byte) {
	m.mu.RLock()
	targets := make([]registration, 0, len(m.operators))
	ids := make([]string, 0, len(m.operators))
	for adminID, reg := range m.operators {
		targets = append(targets, reg)
		ids = append(ids, adminID)
	}
	m.mu.RUnlock()

	for i, reg := range targets {
		if err := reg.conn.Send(frame); err != nil {
			m.logger.Warn("broadcast to operator failed",
				"admin_id", ids[i],
				"connection_id", reg.connID,
				"error", err,
			)
		}
	}
}

// Count returns the number of registered operators.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.operators)
}
