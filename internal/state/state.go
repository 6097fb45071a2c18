// Package state holds per-user scratch data shared by pipeline runs and
// session transports. Resident users are bounded by an LRU table; the least
// recently touched bucket is dropped whole when the bound is hit.
package state

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toolrack/toolrack/internal/logger"
)

var log = logger.ForComponent("state")

const DefaultMaxUsers = 1024

// Bucket is one user's key/value space. Buckets never leak between users.
type Bucket struct {
	mu     sync.RWMutex
	values map[string]any
}

func newBucket() *Bucket {
	return &Bucket{values: make(map[string]any)}
}

func (b *Bucket) get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

func (b *Bucket) set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

func (b *Bucket) delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
}

func (b *Bucket) snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Manager maps user ids to buckets.
type Manager struct {
	users *lru.Cache[string, *Bucket]
}

// NewManager builds a manager bounding resident users to maxUsers.
// Non-positive maxUsers falls back to DefaultMaxUsers.
func NewManager(maxUsers int) *Manager {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	users, err := lru.NewWithEvict(maxUsers, func(userID string, _ *Bucket) {
		log.Debug("user state evicted", "user", userID)
	})
	if err != nil {
		// Reachable only with a non-positive size, which is clamped above.
		panic(err)
	}
	return &Manager{users: users}
}

func (m *Manager) bucket(userID string) *Bucket {
	if b, ok := m.users.Get(userID); ok {
		return b
	}
	b := newBucket()
	// Two first writers can race here; PeekOrAdd keeps exactly one bucket.
	if prev, existed, _ := m.users.PeekOrAdd(userID, b); existed {
		return prev
	}
	return b
}

// Get returns the value stored under key for userID.
func (m *Manager) Get(userID, key string) (any, bool) {
	b, ok := m.users.Get(userID)
	if !ok {
		return nil, false
	}
	return b.get(key)
}

// Set stores value under key for userID, creating the bucket on first use.
func (m *Manager) Set(userID, key string, value any) {
	m.bucket(userID).set(key, value)
}

// Delete removes one key from the user's bucket.
func (m *Manager) Delete(userID, key string) {
	if b, ok := m.users.Get(userID); ok {
		b.delete(key)
	}
}

// Clear drops the user's entire bucket.
func (m *Manager) Clear(userID string) {
	m.users.Remove(userID)
}

// Values returns a copy of the user's bucket.
func (m *Manager) Values(userID string) map[string]any {
	if b, ok := m.users.Get(userID); ok {
		return b.snapshot()
	}
	return map[string]any{}
}

// Users reports how many buckets are resident.
func (m *Manager) Users() int {
	return m.users.Len()
}
