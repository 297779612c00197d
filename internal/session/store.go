package session

import (
	"log/slog"
	"sync"
	"time"
)

// Store keeps sessions in memory, keyed by session ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the session for id, or nil.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Add registers sess under its ID.
func (st *Store) Add(sess *Session) {
	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()
	slog.Debug("Session created", "session_id", sess.ID)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// EvictIdle removes sessions not seen for longer than ttl and returns how many were removed.
func (st *Store) EvictIdle(ttl time.Duration) int {
	threshold := time.Now().Add(-ttl)
	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, sess := range st.sessions {
		if sess.LastSeen().Before(threshold) {
			delete(st.sessions, id)
			evicted++
		}
	}
	return evicted
}
