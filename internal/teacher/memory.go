package teacher

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps accounts in process memory. Used by tests and the
// DB_DRIVER=memory dev mode.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byName map[string]*Account
	byID   map[int64]*Account
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]*Account),
		byID:   make(map[int64]*Account),
	}
}

// Create stores a copy of acct under a fresh id.
func (m *MemoryStore) Create(_ context.Context, acct Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[acct.Username]; ok {
		return 0, ErrDuplicateUsername
	}
	m.nextID++
	acct.ID = m.nextID
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	stored := acct
	m.byName[acct.Username] = &stored
	m.byID[acct.ID] = &stored
	return acct.ID, nil
}

// ByUsername returns a copy of the matching account.
func (m *MemoryStore) ByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.byName[username]), nil
}

// ByID returns a copy of the matching account.
func (m *MemoryStore) ByID(_ context.Context, id int64) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.byID[id]), nil
}

// Len reports how many accounts are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

func clone(a *Account) *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
