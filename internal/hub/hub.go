package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lingocast/internal/transcript"
	"lingocast/internal/translation"
	"lingocast/internal/websocket"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Hub is the per-session fan-out engine. A single processing goroutine
// serializes transcript and control events, which is what preserves
// per-connection delivery order; translation resolution is decoupled into
// asynchronous per-(entry, language) work that never delays the
// original-language push.
type Hub struct {
	publishChannel  chan *types.TranscriptEntry
	controlChannel  chan *controlEvent
	shutdownChannel chan struct{}

	registry *websocket.Registry
	log      interfaces.TranscriptLog
	resolver interfaces.TranslationResolver

	flightMu sync.Mutex
	flights  map[string]*sessionFlight

	running bool
	mu      sync.RWMutex
}

type controlEvent struct {
	sessionID string
	event     *types.Event
}

// sessionFlight tracks in-flight translation work for one session so
// EndSession can drain it within a bounded budget.
type sessionFlight struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a broadcast hub over the given connection registry,
// transcript log and translation resolver.
func NewHub(registry *websocket.Registry, transcriptLog interfaces.TranscriptLog, resolver interfaces.TranslationResolver) *Hub {
	return &Hub{
		publishChannel:  make(chan *types.TranscriptEntry, 1000),
		controlChannel:  make(chan *controlEvent, 256),
		shutdownChannel: make(chan struct{}),
		registry:        registry,
		log:             transcriptLog,
		resolver:        resolver,
		flights:         make(map[string]*sessionFlight),
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting broadcast hub...")
	go h.run(ctx)
	return nil
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping broadcast hub...")
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// PublishEntry queues a freshly appended entry for fan-out. Non-blocking:
// a full channel is surfaced to the ingestion path instead of stalling it.
func (h *Hub) PublishEntry(entry *types.TranscriptEntry) error {
	if entry == nil {
		return ErrNilEntry
	}
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.publishChannel <- entry:
		return nil
	default:
		return ErrPublishChannelFull
	}
}

// BroadcastControl pushes a non-transcript control event to every
// connection of a session, in order with transcript events.
func (h *Hub) BroadcastControl(sessionID string, event *types.Event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.controlChannel <- &controlEvent{sessionID: sessionID, event: event}:
		return nil
	default:
		return ErrControlChannelFull
	}
}

// BroadcastParticipants pushes the current participant counts to a session.
func (h *Hub) BroadcastParticipants(sessionID string) error {
	teachers, students := h.registry.Counts(sessionID)
	return h.BroadcastControl(sessionID, &types.Event{
		Type:      types.EventParticipantsCount,
		SessionID: sessionID,
		Teachers:  teachers,
		Students:  students,
		Timestamp: time.Now(),
	})
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	for {
		select {
		case entry := <-h.publishChannel:
			h.handleEntry(entry)

		case ctrl := <-h.controlChannel:
			h.registry.Broadcast(ctrl.sessionID, "", ctrl.event)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// handleEntry pushes the entry to every session connection immediately
// (original-language viewers see the final text; others see it pending)
// and kicks off lazy translation for each language currently in view.
func (h *Hub) handleEntry(entry *types.TranscriptEntry) {
	event := &types.Event{
		Type:      types.EventTranscriptNew,
		SessionID: entry.SessionID,
		Entry:     entry,
		Timestamp: time.Now(),
	}

	if dropped := h.registry.Broadcast(entry.SessionID, "", event); len(dropped) > 0 {
		if err := h.BroadcastParticipants(entry.SessionID); err != nil {
			log.Printf("Failed to broadcast participant counts for session %s: %v", entry.SessionID, err)
		}
	}

	// Lazy-on-first-viewer translation: only languages someone is watching
	// right now are resolved. Viewers switching languages later trigger
	// resolution through their explicit replay request.
	for _, lang := range h.registry.ViewingLanguages(entry.SessionID) {
		if lang == entry.Language {
			continue
		}
		if _, done := entry.Translations[lang]; done {
			continue
		}
		h.resolveAndBroadcast(entry, lang)
	}
}

// resolveAndBroadcast resolves one (entry, language) translation in the
// background and pushes the transcript.translated update to viewers of
// that language. Registered against the session's flight so EndSession
// can drain it.
func (h *Hub) resolveAndBroadcast(entry *types.TranscriptEntry, lang string) {
	flight := h.flightFor(entry.SessionID)
	flight.wg.Add(1)

	go func() {
		defer flight.wg.Done()

		event := &types.Event{
			Type:      types.EventTranscriptTranslated,
			SessionID: entry.SessionID,
			EntryID:   entry.ID,
			Sequence:  entry.Sequence,
			Language:  lang,
			Timestamp: time.Now(),
		}

		text, err := h.resolver.GetOrTranslate(flight.ctx, entry.SessionID, entry.ID, entry.OriginalText, entry.Language, lang)
		if err != nil {
			if flight.ctx.Err() != nil {
				// Session is draining; the terminal event supersedes us.
				return
			}
			log.Printf("Translation failed: session=%s entry=%s lang=%s err=%v", entry.SessionID, entry.ID, lang, err)
			event.Error = translation.ErrTranslationUnavailable.Error()
			h.registry.Broadcast(entry.SessionID, lang, event)
			return
		}

		if err := h.log.AttachTranslation(entry.SessionID, entry.ID, lang, text); err != nil && !errors.Is(err, transcript.ErrUnknownSession) && !errors.Is(err, transcript.ErrEntryNotFound) {
			// The log may have evicted the session or trimmed the entry
			// between publish and resolution; anything else is a bug.
			log.Printf("Failed to attach translation: session=%s entry=%s lang=%s err=%v", entry.SessionID, entry.ID, lang, err)
		}

		event.Text = text
		h.registry.Broadcast(entry.SessionID, lang, event)
	}()
}

// ResolveFor resolves one (entry, language) translation for a single
// connection, used when serving replay requests where only the requester
// needs the update.
func (h *Hub) ResolveFor(conn *websocket.Connection, entry *types.TranscriptEntry, lang string) {
	flight := h.flightFor(entry.SessionID)
	flight.wg.Add(1)

	go func() {
		defer flight.wg.Done()

		event := &types.Event{
			Type:      types.EventTranscriptTranslated,
			SessionID: entry.SessionID,
			EntryID:   entry.ID,
			Sequence:  entry.Sequence,
			Language:  lang,
			Timestamp: time.Now(),
		}

		text, err := h.resolver.GetOrTranslate(flight.ctx, entry.SessionID, entry.ID, entry.OriginalText, entry.Language, lang)
		if err != nil {
			if flight.ctx.Err() != nil {
				return
			}
			event.Error = translation.ErrTranslationUnavailable.Error()
			_ = conn.Send(event)
			return
		}

		if err := h.log.AttachTranslation(entry.SessionID, entry.ID, lang, text); err != nil && !errors.Is(err, transcript.ErrUnknownSession) && !errors.Is(err, transcript.ErrEntryNotFound) {
			log.Printf("Failed to attach replay translation: session=%s entry=%s lang=%s err=%v", entry.SessionID, entry.ID, lang, err)
		}

		event.Text = text
		_ = conn.Send(event)
	}()
}

func (h *Hub) flightFor(sessionID string) *sessionFlight {
	h.flightMu.Lock()
	defer h.flightMu.Unlock()

	flight, exists := h.flights[sessionID]
	if !exists {
		ctx, cancel := context.WithCancel(context.Background())
		flight = &sessionFlight{ctx: ctx, cancel: cancel}
		h.flights[sessionID] = flight
	}
	return flight
}

// DrainSession waits for the session's in-flight translation work up to
// the caller's deadline, then abandons the remainder so session teardown
// never blocks on the translation collaborator.
func (h *Hub) DrainSession(ctx context.Context, sessionID string) {
	h.flightMu.Lock()
	flight, exists := h.flights[sessionID]
	h.flightMu.Unlock()
	if !exists {
		return
	}

	done := make(chan struct{})
	go func() {
		flight.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Abandoning in-flight translations for session %s after drain budget", sessionID)
	}
	flight.cancel()
}

// ReleaseSession discards flight tracking for an ended session.
func (h *Hub) ReleaseSession(sessionID string) {
	h.flightMu.Lock()
	flight, exists := h.flights[sessionID]
	if exists {
		delete(h.flights, sessionID)
	}
	h.flightMu.Unlock()

	if exists {
		flight.cancel()
	}
}

// GetStats returns hub statistics for the health endpoint.
func (h *Hub) GetStats() map[string]int {
	h.flightMu.Lock()
	flights := len(h.flights)
	h.flightMu.Unlock()

	return map[string]int{
		"queued_entries":   len(h.publishChannel),
		"queued_control":   len(h.controlChannel),
		"tracked_sessions": flights,
	}
}
