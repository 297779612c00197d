// Package session holds per-browser-session state on the server side.
package session

import (
	"sync"
	"time"

	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/vocab"
)

// Session is the state of one browser session. All accessors are safe for
// concurrent use by requests that share the session cookie.
type Session struct {
	ID string

	mu        sync.Mutex
	threadID  string
	csrfToken string
	language  string
	lexicon   *vocab.Lexicon
	persona   domain.Persona
	lastSeen  time.Time

	predictMu sync.Mutex
}

// New creates an empty session.
func New(id string) *Session {
	return &Session{ID: id, lastSeen: time.Now()}
}

// ThreadID returns the assistant conversation handle, or "" if none exists yet.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// SetThreadID stores the assistant conversation handle.
func (s *Session) SetThreadID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadID = id
}

// CSRFToken returns the most recently issued anti-forgery token.
func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

// SetCSRFToken replaces the anti-forgery token.
func (s *Session) SetCSRFToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = token
}

// Language returns the cached language code.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage caches the resolved language code.
func (s *Session) SetLanguage(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = code
}

// Lexicon returns the last resolved lexicon, or nil.
func (s *Session) Lexicon() *vocab.Lexicon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lexicon
}

// SetLexicon caches the resolved lexicon.
func (s *Session) SetLexicon(lex *vocab.Lexicon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lexicon = lex
}

// Persona returns the last validated persona.
func (s *Session) Persona() domain.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// SetPersona caches a validated persona for download logging.
func (s *Session) SetPersona(p domain.Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = p
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the last activity time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// LockPrediction serializes predictions on the session's thread.
// The returned func releases the lock.
func (s *Session) LockPrediction() func() {
	s.predictMu.Lock()
	return s.predictMu.Unlock
}
