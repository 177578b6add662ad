package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the set of live sessions. It is created at startup, holds
// everything in memory, and is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for access tracking.
func WithClock(now func() time.Time) StoreOption {
	return func(st *Store) { st.now = now }
}

// NewStore returns an empty Store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{sessions: make(map[string]*Session), now: time.Now}
	for _, o := range opts {
		o(st)
	}
	return st
}

// Create registers a new session in the Created state.
func (st *Store) Create() *Session {
	s := newSession(uuid.NewString(), st.now)
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

// Get returns the session with id and marks it as accessed.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch()
	return s, nil
}

// Delete removes the session with id and releases its index.
func (st *Store) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.close(ctx)
	return nil
}

// Sweep removes every session not accessed within olderThan and returns the
// removed ids. A non-positive olderThan removes nothing.
func (st *Store) Sweep(ctx context.Context, olderThan time.Duration) []string {
	if olderThan <= 0 {
		return nil
	}
	cutoff := st.now().Add(-olderThan)

	var stale []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.lastAccessed().Before(cutoff) {
			stale = append(stale, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		s.close(ctx)
		ids = append(ids, s.id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// List returns a snapshot of every live session, oldest first.
func (st *Store) List() []Info {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close removes and releases every session.
func (st *Store) Close(ctx context.Context) {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range all {
		s.close(ctx)
	}
}
