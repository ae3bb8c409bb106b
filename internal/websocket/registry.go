package websocket

import (
	"log"
	"sync"
	"time"

	"lingocast/pkg/types"
)

// Registry tracks live connections per session, split by role. Each session
// has its own lock, so join/leave/broadcast for one session never contends
// with another. Registration and broadcast share that lock: a joiner's
// replay preamble is enqueued atomically with its registration, so no live
// event can interleave ahead of history on that connection.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionConns
	connections map[string]*Connection // connectionID -> Connection
}

type sessionConns struct {
	mu       sync.Mutex
	teachers map[string]*Connection
	students map[string]*Connection
}

// NewRegistry creates a connection registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*sessionConns),
		connections: make(map[string]*Connection),
	}
}

func (r *Registry) sessionConnsFor(sessionID string, create bool) *sessionConns {
	r.mu.RLock()
	sc, exists := r.sessions[sessionID]
	r.mu.RUnlock()
	if exists || !create {
		return sc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sc, exists = r.sessions[sessionID]; exists {
		return sc
	}
	sc = &sessionConns{
		teachers: make(map[string]*Connection),
		students: make(map[string]*Connection),
	}
	r.sessions[sessionID] = sc
	return sc
}

// Register adds a connection, first enqueueing the preamble events (replay
// history) under the session lock so live broadcasts cannot overtake them.
// The preamble may exceed the live send buffer, so it is enqueued with
// blocking writes: the writer goroutine drains concurrently, and a joiner
// too slow to absorb its own history fails registration at the write
// deadline instead of stalling the session indefinitely.
// A second teacher connection replaces the existing authoritative publisher
// rather than coexisting with it.
func (r *Registry) Register(conn *Connection, preamble []*types.Event) error {
	if conn == nil {
		return ErrNilConnection
	}

	sc := r.sessionConnsFor(conn.SessionID(), true)

	var replaced *Connection
	sc.mu.Lock()
	for _, event := range preamble {
		if err := conn.SendBlocking(event, writeDeadline); err != nil {
			sc.mu.Unlock()
			return err
		}
	}
	switch conn.Role() {
	case types.RoleTeacher:
		for id, existing := range sc.teachers {
			replaced = existing
			delete(sc.teachers, id)
		}
		sc.teachers[conn.ID()] = conn
	default:
		sc.students[conn.ID()] = conn
	}
	sc.mu.Unlock()

	r.mu.Lock()
	r.connections[conn.ID()] = conn
	if replaced != nil {
		delete(r.connections, replaced.ID())
	}
	r.mu.Unlock()

	if replaced != nil {
		// Close outside the session lock to avoid stalling broadcasts.
		go func() {
			if err := replaced.Close(); err != nil {
				log.Printf("Failed to close replaced teacher connection: %v", err)
			}
		}()
	}

	return nil
}

// Unregister removes a connection. Idempotent; safe to call from deferred
// cleanup paths that may race with broadcast-triggered drops.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	sc := r.sessionConnsFor(conn.SessionID(), false)
	if sc != nil {
		sc.mu.Lock()
		delete(sc.teachers, conn.ID())
		delete(sc.students, conn.ID())
		sc.mu.Unlock()
	}

	r.mu.Lock()
	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
	r.mu.Unlock()
}

// GetConnection returns a connection by ID.
func (r *Registry) GetConnection(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[connectionID]
	return conn, exists
}

// Broadcast sends an event to every connection of a session, optionally
// filtered by viewing language (empty language means all). Overloaded
// consumers are dropped and returned to the caller; they never block other
// connections or the producer.
func (r *Registry) Broadcast(sessionID, language string, event *types.Event) []*Connection {
	sc := r.sessionConnsFor(sessionID, false)
	if sc == nil {
		return nil
	}

	var dropped []*Connection
	send := func(conn *Connection) {
		if language != "" && conn.ViewingLanguage() != language {
			return
		}
		if err := conn.Send(event); err != nil {
			dropped = append(dropped, conn)
		}
	}

	sc.mu.Lock()
	for _, conn := range sc.teachers {
		send(conn)
	}
	for _, conn := range sc.students {
		send(conn)
	}
	sc.mu.Unlock()

	for _, conn := range dropped {
		r.Unregister(conn)
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close overloaded connection %s: %v", conn.ID(), err)
		}
		log.Printf("Dropped slow consumer: connection=%s session=%s role=%s", conn.ID(), sessionID, conn.Role())
	}
	return dropped
}

// ViewingLanguages returns the distinct languages students are currently
// viewing in a session. Drives lazy translation: only languages someone is
// actually watching get translated.
func (r *Registry) ViewingLanguages(sessionID string) []string {
	sc := r.sessionConnsFor(sessionID, false)
	if sc == nil {
		return nil
	}

	seen := make(map[string]bool)
	sc.mu.Lock()
	for _, conn := range sc.students {
		seen[conn.ViewingLanguage()] = true
	}
	for _, conn := range sc.teachers {
		seen[conn.ViewingLanguage()] = true
	}
	sc.mu.Unlock()

	languages := make([]string, 0, len(seen))
	for lang := range seen {
		languages = append(languages, lang)
	}
	return languages
}

// Counts returns live participant counts for a session.
func (r *Registry) Counts(sessionID string) (teachers, students int) {
	sc := r.sessionConnsFor(sessionID, false)
	if sc == nil {
		return 0, 0
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.teachers), len(sc.students)
}

// CloseSession delivers a terminal event to every connection of the
// session, then closes and forgets them all. Used by EndSession.
func (r *Registry) CloseSession(sessionID string, terminal *types.Event) {
	sc := r.sessionConnsFor(sessionID, false)
	if sc == nil {
		return
	}

	var conns []*Connection
	sc.mu.Lock()
	for _, conn := range sc.teachers {
		conns = append(conns, conn)
	}
	for _, conn := range sc.students {
		conns = append(conns, conn)
	}
	sc.teachers = make(map[string]*Connection)
	sc.students = make(map[string]*Connection)
	sc.mu.Unlock()

	r.mu.Lock()
	for _, conn := range conns {
		delete(r.connections, conn.ID())
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	for _, conn := range conns {
		if terminal != nil {
			_ = conn.Send(terminal) // best effort; connection is closing anyway
		}
		if err := conn.CloseGraceful(time.Second); err != nil {
			log.Printf("Failed to close connection %s during session close: %v", conn.ID(), err)
		}
	}
}

// GetStats returns registry statistics for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"total_connections": len(r.connections),
		"active_sessions":   len(r.sessions),
	}
}
