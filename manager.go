package tacplus

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"
)

// sessionManager owns the routing table (session id -> inbound producer),
// admission control, and a shared clone of the connection's outbound
// producer handed to every session it creates. Reads (route) are frequent;
// writes (create/close) are rare, so the table is guarded by an RWMutex.
type sessionManager struct {
	outbound chan<- *Packet

	logger  *slog.Logger
	metrics *Collector

	idleTimeout time.Duration
	onIdle      func()

	mu        sync.RWMutex
	admitting bool
	sessions  map[uint32]chan *Packet
	idleTimer *time.Timer
}

func newSessionManager(outbound chan<- *Packet, logger *slog.Logger, metrics *Collector, idleTimeout time.Duration, onIdle func()) *sessionManager {
	return &sessionManager{
		outbound:    outbound,
		logger:      logger,
		metrics:     metrics,
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
		admitting:   true,
		sessions:    make(map[uint32]chan *Packet),
	}
}

// randomSessionID returns a uniformly random 32-bit session id.
func randomSessionID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// createSession admits a new session if the manager is still accepting
// new work, allocating a unique random session id and installing its
// inbound producer in the routing table. The returned duplexChannel's
// outbound half is the manager's shared outbound queue.
func (m *sessionManager) createSession(ctx context.Context) (uint32, duplexChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.admitting {
		m.metrics.sessionRejected()
		return 0, duplexChannel{}, ErrClosed
	}

	var id uint32
	for {
		var err error
		id, err = randomSessionID()
		if err != nil {
			return 0, duplexChannel{}, newIOError(err)
		}
		if _, exists := m.sessions[id]; !exists {
			break
		}
	}

	dc := newDuplexChannel(m.outbound)
	m.sessions[id] = dc.inbound
	m.stopIdleTimerLocked()
	m.metrics.sessionCreated()

	return id, dc, nil
}

// route delivers p to the session named by its header's session id. An
// unmatched session id, or a session whose inbound queue is full, is not
// an error for the connection: the packet is discarded and logged so the
// byte stream stays in sync (spec §4.D).
func (m *sessionManager) route(p *Packet) {
	m.mu.RLock()
	in, ok := m.sessions[p.Header.SessionID]
	m.mu.RUnlock()

	if !ok {
		m.metrics.packetDropped(dropReasonNoSession)
		m.logger.Warn("discarding packet for unknown session", "session_id", p.Header.SessionID)
		return
	}

	select {
	case in <- p:
	default:
		m.metrics.packetDropped(dropReasonQueueFull)
		m.logger.Warn("discarding packet: inbound queue full", "session_id", p.Header.SessionID)
	}
}

// closeSession removes id from the routing table and closes its inbound
// half, which the owning session observes as end-of-stream.
func (m *sessionManager) closeSession(id uint32) {
	m.mu.Lock()
	in, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	empty := len(m.sessions) == 0
	if empty && m.idleTimeout > 0 && m.onIdle != nil {
		m.idleTimer = time.AfterFunc(m.idleTimeout, m.onIdle)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	close(in)
	m.metrics.sessionClosed()
}

func (m *sessionManager) stopIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// sessionCount reports the number of sessions currently in the routing
// table.
func (m *sessionManager) sessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// disableNewSessions flips admitting to false. Once false it never
// becomes true again for this manager (spec invariant 7).
func (m *sessionManager) disableNewSessions() {
	m.mu.Lock()
	m.admitting = false
	m.mu.Unlock()
}

// shutdown drops the entire routing table, closing every session's
// inbound half.
func (m *sessionManager) shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uint32]chan *Packet)
	m.stopIdleTimerLocked()
	m.mu.Unlock()

	for _, in := range sessions {
		close(in)
		m.metrics.sessionClosed()
	}
}
