package token

import (
	"sync"
	"time"
)

// Store is the bearer-credential slot. Implementations must make every Set and
// Clear visible to subsequent Get calls immediately, replace atomically on Set,
// and keep Clear idempotent.
type Store interface {
	Get() (string, bool)
	Set(token string, ttl time.Duration)
	Clear()
}

// MemoryStore is an in-process credential slot, used by the client agent as
// its persisted token. At most one credential is current; Set supersedes.
type MemoryStore struct {
	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	return s.token, true
}

func (s *MemoryStore) Set(token string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.issuedAt = time.Now()
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.issuedAt = time.Time{}
}

// IssuedAt reports when the current credential was stored.
func (s *MemoryStore) IssuedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return time.Time{}, false
	}
	return s.issuedAt, true
}
