package sessionstore

import (
	"sync"
	"time"

	"github.com/plugincraft/forge/pkg/shared/types"
)

// memoryStore is the in-process fallback used when Redis is unreachable
// or unconfigured. It mirrors the teacher pack's fallback-provider
// shape — swap the backing store behind the same narrow interface rather
// than fail the caller outright — without depending on any Redis type.
type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	defaultTTL time.Duration
}

type memoryEntry struct {
	session   types.Session
	expiresAt time.Time
}

func newMemoryStore(ttl time.Duration) *memoryStore {
	return &memoryStore{entries: make(map[string]memoryEntry), defaultTTL: ttl}
}

func (m *memoryStore) save(session types.Session, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[session.ID] = memoryEntry{session: session, expiresAt: time.Now().Add(ttl)}
}

func (m *memoryStore) get(id string) (*types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, false
	}
	session := entry.session
	return &session, true
}

func (m *memoryStore) list() []types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make([]types.Session, 0, len(m.entries))
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
			continue
		}
		out = append(out, entry.session)
	}
	return out
}

func (m *memoryStore) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
}
