package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// ConnectionCloser is the slice of the connection registry the lifecycle
// controller needs: terminal close on end, participant counts for the idle
// sweeper.
type ConnectionCloser interface {
	CloseSession(sessionID string, terminal *types.Event)
	Counts(sessionID string) (teachers, students int)
}

// Broadcaster extends the fan-out interface with end-of-life hooks the
// lifecycle controller drives.
type Broadcaster interface {
	interfaces.Broadcaster
	ReleaseSession(sessionID string)
}

// Config holds lifecycle timing knobs.
type Config struct {
	// DrainBudget bounds how long EndSession waits for in-flight
	// translation work before abandoning it.
	DrainBudget time.Duration
	// IdleTimeout is how long a session may sit with no ingestion and no
	// connections before the sweeper auto-ends it.
	IdleTimeout time.Duration
	// EndedGrace is how long an ended session's transcript stays readable
	// for late joiners and audit before eviction.
	EndedGrace time.Duration
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns lifecycle defaults sized for classroom sessions.
func DefaultConfig() Config {
	return Config{
		DrainBudget:   5 * time.Second,
		IdleTimeout:   30 * time.Minute,
		EndedGrace:    10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// sessionState is one registry slot. Its mutex is the per-session
// single-writer section: status checks, sequence-assigning appends and
// state transitions all serialize through it, while different sessions
// proceed independently.
type sessionState struct {
	mu           sync.Mutex
	session      *types.Session
	lastActivity time.Time
	endOnce      sync.Once
}

// Manager is the process-wide session registry and lifecycle controller.
type Manager struct {
	store       interfaces.Store
	log         interfaces.TranscriptLog
	cache       interfaces.TranslationResolver
	broadcaster Broadcaster
	closer      ConnectionCloser
	config      Config

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewManager creates a session manager. store may be nil in tests; every
// store interaction is guarded.
func NewManager(store interfaces.Store, transcriptLog interfaces.TranscriptLog, cache interfaces.TranslationResolver, broadcaster Broadcaster, closer ConnectionCloser, cfg Config) *Manager {
	if cfg.DrainBudget <= 0 {
		cfg.DrainBudget = DefaultConfig().DrainBudget
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.EndedGrace <= 0 {
		cfg.EndedGrace = DefaultConfig().EndedGrace
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	return &Manager{
		store:       store,
		log:         transcriptLog,
		cache:       cache,
		broadcaster: broadcaster,
		closer:      closer,
		config:      cfg,
		sessions:    make(map[string]*sessionState),
	}
}

// LoadActiveSessions rebuilds the registry from the store after a restart.
// The in-memory replay window starts empty; history predating the restart
// is only reachable through the store.
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = &sessionState{session: s, lastActivity: time.Now()}
	}

	log.Printf("Loaded %d live sessions", len(sessions))
	return nil
}

// StartSession constructs a new active session, registers it and persists
// the record.
func (m *Manager) StartSession(ctx context.Context, classID, subjectID, sourceLanguage string, targetLanguages []string) (*types.Session, error) {
	session := &types.Session{
		ID:              uuid.New().String(),
		ClassID:         classID,
		SubjectID:       subjectID,
		SourceLanguage:  sourceLanguage,
		TargetLanguages: normalizeTargets(sourceLanguage, targetLanguages),
		Status:          types.SessionStatusActive,
		StartedAt:       time.Now(),
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	if m.store != nil {
		if err := m.store.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[session.ID] = &sessionState{session: session, lastActivity: time.Now()}
	m.mu.Unlock()

	log.Printf("Started session: id=%s class=%s subject=%s source=%s targets=%v",
		session.ID, classID, subjectID, sourceLanguage, session.TargetLanguages)
	return copySession(session), nil
}

func (m *Manager) state(sessionID string) (*sessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// PauseSession transitions active -> paused. Pausing an already-paused
// session is a no-op success; the transition out of ended does not exist.
func (m *Manager) PauseSession(ctx context.Context, sessionID string) error {
	state, err := m.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	switch state.session.Status {
	case types.SessionStatusPaused:
		state.mu.Unlock()
		return nil
	case types.SessionStatusEnded:
		state.mu.Unlock()
		return fmt.Errorf("%w: cannot pause ended session", ErrInvalidTransition)
	}
	state.session.Status = types.SessionStatusPaused
	snapshot := copySession(state.session)
	state.mu.Unlock()

	m.persistUpdate(ctx, snapshot)
	m.notifyControl(sessionID, types.EventSessionPaused)
	log.Printf("Paused session: id=%s", sessionID)
	return nil
}

// ResumeSession transitions paused -> active. Resuming an active session
// is a no-op success (concurrent teacher clients race on this); resuming
// an ended session is an invalid transition.
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) error {
	state, err := m.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	switch state.session.Status {
	case types.SessionStatusActive:
		state.mu.Unlock()
		return nil
	case types.SessionStatusEnded:
		state.mu.Unlock()
		return fmt.Errorf("%w: cannot resume ended session", ErrInvalidTransition)
	}
	state.session.Status = types.SessionStatusActive
	state.lastActivity = time.Now()
	snapshot := copySession(state.session)
	state.mu.Unlock()

	m.persistUpdate(ctx, snapshot)
	m.notifyControl(sessionID, types.EventSessionResumed)
	log.Printf("Resumed session: id=%s", sessionID)
	return nil
}

// EndSession transitions any non-ended state to ended. Idempotent: racing
// callers all observe success and exactly one performs the teardown. The
// teardown drains in-flight translation work within the drain budget,
// delivers session.ended to every connection, closes them, and schedules
// transcript/cache eviction after the grace period.
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	state, err := m.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if state.session.Status == types.SessionStatusEnded {
		state.mu.Unlock()
		return nil
	}
	now := time.Now()
	state.session.Status = types.SessionStatusEnded
	state.session.EndedAt = &now
	snapshot := copySession(state.session)
	state.mu.Unlock()

	state.endOnce.Do(func() {
		m.persistUpdate(ctx, snapshot)

		drainCtx, cancel := context.WithTimeout(context.Background(), m.config.DrainBudget)
		defer cancel()
		if m.broadcaster != nil {
			m.broadcaster.DrainSession(drainCtx, sessionID)
		}

		if m.closer != nil {
			m.closer.CloseSession(sessionID, &types.Event{
				Type:      types.EventSessionEnded,
				SessionID: sessionID,
				Timestamp: time.Now(),
			})
		}
		if m.broadcaster != nil {
			m.broadcaster.ReleaseSession(sessionID)
		}

		// The transcript stays readable for the grace period, then the
		// session is evicted wholesale.
		time.AfterFunc(m.config.EndedGrace, func() { m.evict(sessionID) })

		log.Printf("Ended session: id=%s", sessionID)
	})
	return nil
}

// Ingest accepts one recognized utterance from the ASR collaborator. The
// append and the hub hand-off both happen under the session's state lock,
// making it the single writer for sequence assignment and guaranteeing the
// hub sees entries in append order; translation work is decoupled and
// never delays this path.
func (m *Manager) Ingest(ctx context.Context, sessionID, text string, confidence float64) (*types.TranscriptEntry, error) {
	state, err := m.state(sessionID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	switch state.session.Status {
	case types.SessionStatusPaused:
		state.mu.Unlock()
		return nil, ErrSessionPaused
	case types.SessionStatusEnded:
		state.mu.Unlock()
		return nil, ErrSessionEnded
	}

	entry, err := m.log.Append(sessionID, state.session.SourceLanguage, text, confidence)
	if err != nil {
		state.mu.Unlock()
		return nil, err
	}
	state.lastActivity = time.Now()

	// Published before the writer section is released so entries enter
	// the hub in sequence order; PublishEntry is a non-blocking enqueue.
	if m.broadcaster != nil {
		if err := m.broadcaster.PublishEntry(entry); err != nil {
			log.Printf("Failed to publish entry: session=%s seq=%d err=%v", sessionID, entry.Sequence, err)
		}
	}
	state.mu.Unlock()

	// Fire-and-forget flush; durability is the store's concern, not the
	// live path's.
	if m.store != nil {
		go func(e *types.TranscriptEntry) {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.store.StoreTranscript(flushCtx, e); err != nil {
				log.Printf("Failed to flush transcript entry: session=%s seq=%d err=%v", e.SessionID, e.Sequence, err)
			}
		}(entry)
	}

	return entry, nil
}

// GetSession retrieves a session by ID, falling back to the store for
// sessions already evicted from the live registry.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	state, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if exists {
		state.mu.Lock()
		defer state.mu.Unlock()
		return copySession(state.session), nil
	}

	if m.store != nil {
		session, err := m.store.GetSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
	}
	return nil, ErrSessionNotFound
}

// ListActiveSessions returns all live (active or paused) sessions.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(m.sessions))
	for _, state := range m.sessions {
		state.mu.Lock()
		if state.session.Status != types.SessionStatusEnded {
			sessions = append(sessions, copySession(state.session))
		}
		state.mu.Unlock()
	}
	return sessions, nil
}

// ValidateJoin checks that a participant may open a streaming connection.
// Identity was already settled by the authorization collaborator; this
// validates role, session state and the requested viewing language.
func (m *Manager) ValidateJoin(sessionID, role, viewingLanguage string) error {
	if !types.IsValidRole(role) {
		return ErrInvalidRole
	}

	state, err := m.state(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.session.Status == types.SessionStatusEnded {
		return ErrSessionEnded
	}
	if !state.session.SupportsLanguage(viewingLanguage) {
		return ErrUnsupportedLanguage
	}
	state.lastActivity = time.Now()
	return nil
}

// TouchActivity records connection-level activity for the idle sweeper.
func (m *Manager) TouchActivity(sessionID string) {
	state, err := m.state(sessionID)
	if err != nil {
		return
	}
	state.mu.Lock()
	state.lastActivity = time.Now()
	state.mu.Unlock()
}

func (m *Manager) persistUpdate(ctx context.Context, session *types.Session) {
	if m.store == nil {
		return
	}
	if err := m.store.UpdateSession(ctx, session); err != nil {
		// Lifecycle proceeds regardless; the store reconciles on restart.
		log.Printf("Failed to persist session update: id=%s status=%s err=%v", session.ID, session.Status, err)
	}
}

func (m *Manager) notifyControl(sessionID, eventType string) {
	if m.broadcaster == nil {
		return
	}
	err := m.broadcaster.BroadcastControl(sessionID, &types.Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("Failed to broadcast %s for session %s: %v", eventType, sessionID, err)
	}
}

// evict removes an ended session and its derived state after the grace
// period.
func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if m.log != nil {
		m.log.DropSession(sessionID)
	}
	if m.cache != nil {
		m.cache.DropSession(sessionID)
	}
	log.Printf("Evicted session: id=%s", sessionID)
}

// GetStats returns registry statistics for the health endpoint.
func (m *Manager) GetStats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active, paused, ended := 0, 0, 0
	for _, state := range m.sessions {
		state.mu.Lock()
		switch state.session.Status {
		case types.SessionStatusActive:
			active++
		case types.SessionStatusPaused:
			paused++
		default:
			ended++
		}
		state.mu.Unlock()
	}
	return map[string]int{
		"active_sessions": active,
		"paused_sessions": paused,
		"ended_sessions":  ended,
	}
}

func copySession(s *types.Session) *types.Session {
	dup := *s
	dup.TargetLanguages = append([]string(nil), s.TargetLanguages...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		dup.EndedAt = &ended
	}
	return &dup
}

// normalizeTargets dedupes the requested target set and drops the source
// language. Clients commonly list every viewable language including the
// source; the source is viewable without translation, so it is accepted
// here but carries no translation work.
func normalizeTargets(source string, codes []string) []string {
	seen := make(map[string]bool)
	targets := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == source || seen[code] {
			continue
		}
		seen[code] = true
		targets = append(targets, code)
	}
	return targets
}
