package api

import (
	"sync"
	"time"
)

// RateLimiter caps transcript ingestion per session using a fixed
// per-minute window.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	sessions map[string]*sessionWindow
}

type sessionWindow struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		sessions: make(map[string]*sessionWindow),
	}
}

// Allow reports whether the session may ingest another utterance.
func (rl *RateLimiter) Allow(sessionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.sessions[sessionID]
	if !exists {
		rl.sessions[sessionID] = &sessionWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rl.limit {
		return false
	}

	window.count++
	return true
}

// Cleanup removes sessions idle for several windows. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for sessionID, window := range rl.sessions {
		if now.Sub(window.windowStart) > 5*time.Minute {
			delete(rl.sessions, sessionID)
		}
	}
}
