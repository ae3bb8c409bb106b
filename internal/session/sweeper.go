package session

import (
	"context"
	"log"
	"time"

	"lingocast/pkg/types"
)

// StartSweeper launches the background sweep that auto-ends sessions with
// no ingestion and no connections past the idle timeout. This bounds
// resource growth when a teacher's client dies without calling EndSession.
func (m *Manager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) sweep(ctx context.Context) {
	type candidate struct {
		id   string
		idle time.Duration
	}

	m.mu.RLock()
	var candidates []candidate
	for id, state := range m.sessions {
		state.mu.Lock()
		if state.session.Status != types.SessionStatusEnded {
			if idle := time.Since(state.lastActivity); idle > m.config.IdleTimeout {
				candidates = append(candidates, candidate{id: id, idle: idle})
			}
		}
		state.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, c := range candidates {
		// A session with live connections is not orphaned, even if the
		// teacher has been silent past the timeout.
		if m.closer != nil {
			teachers, students := m.closer.Counts(c.id)
			if teachers+students > 0 {
				m.TouchActivity(c.id)
				continue
			}
		}
		log.Printf("Sweeping idle session: id=%s idle=%s", c.id, c.idle.Round(time.Second))
		if err := m.EndSession(ctx, c.id); err != nil {
			log.Printf("Failed to sweep session %s: %v", c.id, err)
		}
	}
}
