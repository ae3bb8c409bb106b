package translation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lingocast/pkg/interfaces"
)

// cacheEntry is a successfully computed translation. Failures are never
// stored, so a later retry is always possible.
type cacheEntry struct {
	text       string
	computedAt time.Time
}

// Cache memoizes (session, entry, targetLanguage) -> translated text.
// Multiple viewers on the same language, or the same viewer reconnecting,
// hit the cache instead of the translation collaborator. Misses are
// coalesced with singleflight so concurrent callers for the same key share
// one collaborator call.
type Cache struct {
	translator interfaces.Translator
	timeout    time.Duration

	mu      sync.RWMutex
	entries map[string]map[string]cacheEntry // sessionID -> entryID|lang -> entry
	flight  singleflight.Group
}

// NewCache creates a translation cache backed by the given collaborator.
// timeout bounds each individual collaborator call.
func NewCache(translator interfaces.Translator, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cache{
		translator: translator,
		timeout:    timeout,
		entries:    make(map[string]map[string]cacheEntry),
	}
}

func cacheKey(entryID, targetLanguage string) string {
	return entryID + "|" + targetLanguage
}

// GetOrTranslate returns the translated text for an entry, invoking the
// collaborator at most once per (entry, language) pair even under
// concurrent requests. A collaborator failure surfaces as
// ErrTranslationUnavailable without poisoning the cache.
func (c *Cache) GetOrTranslate(ctx context.Context, sessionID, entryID, text, sourceLanguage, targetLanguage string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	if sourceLanguage == targetLanguage {
		return text, nil
	}

	key := cacheKey(entryID, targetLanguage)
	if cached, ok := c.lookup(sessionID, key); ok {
		return cached, nil
	}

	// Singleflight scope includes the session so independent sessions
	// never wait on each other's in-flight work.
	result, err, _ := c.flight.Do(sessionID+"|"+key, func() (interface{}, error) {
		// A concurrent caller may have stored the value between our
		// lookup and the flight starting.
		if cached, ok := c.lookup(sessionID, key); ok {
			return cached, nil
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		translated, err := c.translator.Translate(callCtx, text, sourceLanguage, targetLanguage)
		if err != nil {
			return "", fmt.Errorf("%w: %s->%s: %v", ErrTranslationUnavailable, sourceLanguage, targetLanguage, err)
		}

		c.store(sessionID, key, translated)
		return translated, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Peek returns the cached translation without triggering the collaborator.
func (c *Cache) Peek(sessionID, entryID, targetLanguage string) (string, bool) {
	return c.lookup(sessionID, cacheKey(entryID, targetLanguage))
}

func (c *Cache) lookup(sessionID, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	session, exists := c.entries[sessionID]
	if !exists {
		return "", false
	}
	entry, exists := session[key]
	if !exists {
		return "", false
	}
	return entry.text, true
}

func (c *Cache) store(sessionID, key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.entries[sessionID]
	if !exists {
		session = make(map[string]cacheEntry)
		c.entries[sessionID] = session
	}
	// First write wins; recomputation for the same key is idempotent.
	if _, done := session[key]; done {
		return
	}
	session[key] = cacheEntry{text: text, computedAt: time.Now()}
}

// DropSession evicts every cached translation for a session. Entries are
// scoped to session lifetime, so no LRU is needed at classroom volume.
func (c *Cache) DropSession(sessionID string) {
	c.mu.Lock()
	count := len(c.entries[sessionID])
	delete(c.entries, sessionID)
	c.mu.Unlock()

	if count > 0 {
		log.Printf("Dropped %d cached translations for session %s", count, sessionID)
	}
}

// GetStats returns cache statistics for the health endpoint.
func (c *Cache) GetStats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, session := range c.entries {
		total += len(session)
	}
	return map[string]int{
		"sessions":            len(c.entries),
		"cached_translations": total,
	}
}
