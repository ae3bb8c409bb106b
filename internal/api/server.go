package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lingocast/internal/session"
	"lingocast/pkg/interfaces"
	"lingocast/pkg/types"
)

// Registry exposes the connection counts the API reports alongside
// session data.
type Registry interface {
	Counts(sessionID string) (teachers, students int)
	GetStats() map[string]int
}

// Server is the HTTP boundary: request parsing, error mapping, and JSON
// serialization only. Business rules live in the session controller.
type Server struct {
	controller  interfaces.SessionController
	store       interfaces.Store
	registry    Registry
	rateLimiter *RateLimiter
	router      *mux.Router
}

func NewServer(controller interfaces.SessionController, store interfaces.Store, registry Registry, ingestRateLimit int) *Server {
	s := &Server{
		controller:  controller,
		store:       store,
		registry:    registry,
		rateLimiter: NewRateLimiter(ingestRateLimit),
		router:      mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware, s.jsonMiddleware)

	s.router.HandleFunc("/api/sessions", s.createSession).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions", s.listSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions/{id}", s.getSession).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions/{id}", s.endSession).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/sessions/{id}/pause", s.pauseSession).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}/resume", s.resumeSession).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}/transcripts", s.ingestTranscript).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}/transcripts", s.listTranscripts).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartCleanup runs the rate limiter sweep until ctx is cancelled.
func (s *Server) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
			}
		}
	}()
}

type CreateSessionRequest struct {
	ClassID         string   `json:"class_id"`
	SubjectID       string   `json:"subject_id"`
	SourceLanguage  string   `json:"source_language"`
	TargetLanguages []string `json:"target_languages"`
}

type SessionResponse struct {
	Session  *types.Session `json:"session"`
	Teachers int            `json:"teachers"`
	Students int            `json:"students"`
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type IngestRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type IngestResponse struct {
	EntryID  string `json:"entry_id"`
	Sequence int64  `json:"sequence"`
}

type TranscriptsResponse struct {
	Entries []*types.TranscriptEntry `json:"entries"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	sess, err := s.controller.StartSession(r.Context(), req.ClassID, req.SubjectID, req.SourceLanguage, req.TargetLanguages)
	if err != nil {
		if errors.Is(err, session.ErrInvalidConfiguration) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SessionResponse{Session: sess})
}

// GET /api/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.controller.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	resp := ListSessionsResponse{Sessions: make([]SessionResponse, len(sessions))}
	for i, sess := range sessions {
		teachers, students := s.registry.Counts(sess.ID)
		resp.Sessions[i] = SessionResponse{Session: sess, Teachers: teachers, Students: students}
	}

	json.NewEncoder(w).Encode(resp)
}

// GET /api/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	sess, err := s.controller.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	teachers, students := s.registry.Counts(sessionID)
	json.NewEncoder(w).Encode(SessionResponse{Session: sess, Teachers: teachers, Students: students})
}

// POST /api/sessions/{id}/pause
func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	s.applyTransition(w, sessionID, "paused", s.controller.PauseSession(r.Context(), sessionID))
}

// POST /api/sessions/{id}/resume
func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	s.applyTransition(w, sessionID, "resumed", s.controller.ResumeSession(r.Context(), sessionID))
}

// DELETE /api/sessions/{id}
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	s.applyTransition(w, sessionID, "ended", s.controller.EndSession(r.Context(), sessionID))
}

func (s *Server) applyTransition(w http.ResponseWriter, sessionID, verb string, err error) {
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrInvalidTransition):
			s.sendError(w, err.Error(), http.StatusConflict)
		default:
			s.sendError(w, fmt.Sprintf("Failed to update session %s", sessionID), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"session_id": sessionID, "status": verb})
}

// POST /api/sessions/{id}/transcripts
func (s *Server) ingestTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if !s.rateLimiter.Allow(sessionID) {
		s.sendError(w, "Ingestion rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	entry, err := s.controller.Ingest(r.Context(), sessionID, req.Text, req.Confidence)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrSessionNotActive):
			s.sendError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, types.ErrEmptyUtterance),
			errors.Is(err, types.ErrUtteranceTooLarge),
			errors.Is(err, types.ErrInvalidConfidence):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			s.sendError(w, "Failed to ingest transcript", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(IngestResponse{EntryID: entry.ID, Sequence: entry.Sequence})
}

// GET /api/sessions/{id}/transcripts serves the persisted transcript,
// including translations attached before each entry was flushed.
func (s *Server) listTranscripts(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if _, err := s.controller.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	entries, err := s.store.GetSessionTranscripts(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to load transcripts", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*types.TranscriptEntry{}
	}

	json.NewEncoder(w).Encode(TranscriptsResponse{Entries: entries})
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
