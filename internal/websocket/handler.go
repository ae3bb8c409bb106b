package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"lingocast/internal/transcript"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy belongs to the deployment in front of this core.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// TranslationNotifier is the slice of the broadcast hub the handler needs:
// per-connection translation resolution for replays, and participant count
// updates on join/leave.
type TranslationNotifier interface {
	ResolveFor(conn *Connection, entry *types.TranscriptEntry, lang string)
	BroadcastParticipants(sessionID string) error
}

// HandlerConfig carries connection supervision knobs.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	SendBuffer   int
}

// Handler upgrades join requests into streaming connections and services
// the client-initiated command stream (language switches, replays).
type Handler struct {
	registry   *Registry
	controller interfaces.SessionController
	log        interfaces.TranscriptLog
	notifier   TranslationNotifier
	config     HandlerConfig
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, controller interfaces.SessionController, transcriptLog interfaces.TranscriptLog, notifier TranslationNotifier, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	return &Handler{
		registry:   registry,
		controller: controller,
		log:        transcriptLog,
		notifier:   notifier,
		config:     cfg,
	}
}

// HandleJoin handles a join request: validation, upgrade, bounded history
// replay and registration for live push. A reconnect supplies ?since=N and
// receives exactly the entries it missed (bounded by the replay window).
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	role := r.URL.Query().Get("role")
	language := r.URL.Query().Get("language")

	if sessionID == "" || role == "" || language == "" {
		http.Error(w, "Missing required query parameters: session_id, role, language", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'teacher' or 'student'", http.StatusBadRequest)
		return
	}
	if !types.IsSupportedLanguage(language) {
		http.Error(w, "Unsupported language code", http.StatusBadRequest)
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid since sequence", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	if err := h.controller.ValidateJoin(sessionID, role, language); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, interfaces.ErrSessionEnded):
			http.Error(w, "Session has ended", http.StatusGone)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, sessionID, role, language, h.config.SendBuffer)

	preamble, pending := h.buildReplay(conn, since)
	if err := h.registry.Register(conn, preamble); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}

	// Translations missing from the replayed window resolve lazily and
	// arrive as transcript.translated updates on this connection only.
	for _, entry := range pending {
		h.notifier.ResolveFor(conn, entry, language)
	}

	if err := h.notifier.BroadcastParticipants(sessionID); err != nil {
		log.Printf("Failed to broadcast participant counts: %v", err)
	}
	h.controller.TouchActivity(sessionID)

	log.Printf("Connection joined: id=%s session=%s role=%s language=%s since=%d", conn.ID(), sessionID, role, language, since)

	go h.handleConnection(conn, wsConn)
}

// buildReplay assembles the preamble delivered before live push: optional
// truncation marker, the replayed entries in order, and a completion
// marker. It also returns entries whose translation for the connection's
// language is still pending.
func (h *Handler) buildReplay(conn *Connection, since int64) ([]*types.Event, []*types.TranscriptEntry) {
	var events []*types.Event
	var pending []*types.TranscriptEntry

	entries, truncated, err := h.log.Since(conn.SessionID(), since)
	if err != nil && !errors.Is(err, transcript.ErrUnknownSession) && !errors.Is(err, transcript.ErrReplayTruncated) {
		log.Printf("Failed to load replay history: session=%s err=%v", conn.SessionID(), err)
	}

	if truncated {
		events = append(events, &types.Event{
			Type:      types.EventHistoryTruncated,
			SessionID: conn.SessionID(),
			Timestamp: time.Now(),
		})
	}

	lang := conn.ViewingLanguage()
	for _, entry := range entries {
		events = append(events, &types.Event{
			Type:      types.EventTranscriptNew,
			SessionID: conn.SessionID(),
			Entry:     entry,
			Timestamp: time.Now(),
		})
		if _, ok := entry.TextFor(lang); !ok {
			pending = append(pending, entry)
		}
	}

	events = append(events, &types.Event{
		Type:      types.EventHistoryComplete,
		SessionID: conn.SessionID(),
		Sequence:  h.log.LastSequence(conn.SessionID()),
		Timestamp: time.Now(),
	})
	return events, pending
}

// serveReplay handles an explicit replay_since command on a live
// connection, e.g. after a viewer switches language. The batch may exceed
// the live send buffer, so events are enqueued with blocking writes that
// only stall this connection's own read pump.
func (h *Handler) serveReplay(conn *Connection, since int64) {
	events, pending := h.buildReplay(conn, since)
	for _, event := range events {
		if err := conn.SendBlocking(event, writeDeadline); err != nil {
			return
		}
	}
	for _, entry := range pending {
		h.notifier.ResolveFor(conn, entry, conn.ViewingLanguage())
	}
}

// handleConnection runs the read pump and heartbeat supervision for one
// connection, and tears it down on exit.
func (h *Handler) handleConnection(conn *Connection, wsConn *websocket.Conn) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		if err := h.notifier.BroadcastParticipants(conn.SessionID()); err != nil {
			log.Printf("Failed to broadcast participant counts: %v", err)
		}
		log.Printf("Connection left: id=%s session=%s", conn.ID(), conn.SessionID())
	}()

	if err := wsConn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := wsConn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleCommand(conn, data)
	}
}

// handleCommand services a client-initiated command. Invalid commands are
// answered with an error event rather than a disconnect; one confused
// client must never cost itself the stream.
func (h *Handler) handleCommand(conn *Connection, data []byte) {
	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.sendCommandError(conn, "invalid command payload")
		return
	}
	if err := cmd.Validate(); err != nil {
		h.sendCommandError(conn, err.Error())
		return
	}

	switch cmd.Type {
	case types.CommandSetLanguage:
		// The viewing language is client-directed connection state; no
		// automatic replay happens here. The client follows up with an
		// explicit replay_since for back-filled history.
		if err := h.controller.ValidateJoin(conn.SessionID(), conn.Role(), cmd.Language); err != nil {
			h.sendCommandError(conn, err.Error())
			return
		}
		conn.SetViewingLanguage(cmd.Language)
		log.Printf("Connection %s switched language to %s", conn.ID(), cmd.Language)

	case types.CommandReplaySince:
		h.serveReplay(conn, cmd.SinceSequence)
	}

	h.controller.TouchActivity(conn.SessionID())
}

func (h *Handler) sendCommandError(conn *Connection, message string) {
	_ = conn.Send(&types.Event{
		Type:      types.EventCommandError,
		SessionID: conn.SessionID(),
		Error:     message,
		Timestamp: time.Now(),
	})
}
