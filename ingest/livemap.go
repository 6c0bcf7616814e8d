package ingest

import (
	"sort"
	"sync"

	"tokenflow/models"
)

// LiveMap is a bounded map of live tokens keyed by mint address. When the
// capacity is exceeded the entry with the oldest observation time is
// evicted. All mutation goes through the ingester's single message-handling
// path; reads take an independent snapshot.
type LiveMap struct {
	mu       sync.RWMutex
	capacity int
	tokens   map[string]models.Token
}

// NewLiveMap creates an empty LiveMap holding at most capacity entries.
func NewLiveMap(capacity int) *LiveMap {
	if capacity <= 0 {
		capacity = 25
	}
	return &LiveMap{
		capacity: capacity,
		tokens:   make(map[string]models.Token, capacity),
	}
}

// Put inserts or updates a token and enforces the capacity bound.
func (m *LiveMap) Put(tok models.Token) {
	if !tok.Valid() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[tok.Address] = tok

	for len(m.tokens) > m.capacity {
		oldest := ""
		for addr, t := range m.tokens {
			if oldest == "" || t.ObservedAt.Before(m.tokens[oldest].ObservedAt) {
				oldest = addr
			}
		}
		delete(m.tokens, oldest)
	}
}

// Delete removes a token by address and reports whether it was present.
func (m *LiveMap) Delete(address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[address]
	delete(m.tokens, address)
	return ok
}

// Len returns the number of held tokens.
func (m *LiveMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// Tokens returns an independent snapshot sorted newest-observed first.
func (m *LiveMap) Tokens() []models.Token {
	m.mu.RLock()
	out := make([]models.Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, t)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	return out
}

// Clear drops all entries.
func (m *LiveMap) Clear() {
	m.mu.Lock()
	m.tokens = make(map[string]models.Token, m.capacity)
	m.mu.Unlock()
}
