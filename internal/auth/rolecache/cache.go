package rolecache

import (
	"sync"
	"time"
)

// RoleSet is a snapshot of a subject's guild roles with its fetch time.
// Entries are superseded whole on refresh, never merged.
type RoleSet struct {
	SubjectID string
	Roles     []string
	FetchedAt time.Time
}

// Contains reports whether the set includes the given role id.
func (s RoleSet) Contains(roleID string) bool {
	for _, r := range s.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Cache is a subject-keyed, TTL-bound cache of role sets. Expiry is checked at
// read time; stale entries are treated as misses rather than swept, so memory
// is bounded by the distinct subjects seen within TTL windows. Single-instance,
// in-memory — a known scaling limit.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]RoleSet
	ttl     time.Duration

	now func() time.Time
}

// New creates a cache whose entries are valid for ttl after their fetch time.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]RoleSet),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached role set for subjectID, or false when no entry exists
// or the entry's age has reached the TTL. An expired entry is never returned
// as stale-but-valid.
func (c *Cache) Get(subjectID string) (RoleSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[subjectID]
	if !ok {
		return RoleSet{}, false
	}
	if c.now().Sub(entry.FetchedAt) >= c.ttl {
		return RoleSet{}, false
	}
	return entry, true
}

// Put stores the role set for subjectID, replacing any prior entry.
// Concurrent writers for the same subject race last-write-wins; each write is
// an independent overwrite, so a role removed upstream disappears on the next
// refresh.
func (c *Cache) Put(subjectID string, roles []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[subjectID] = RoleSet{
		SubjectID: subjectID,
		Roles:     roles,
		FetchedAt: c.now(),
	}
}
