// internal/migration/sessions.go
package migration

import "sync"

// Session is one user's panel and the feed its notifications go to.
type Session struct {
	Panel *Panel
	Feed  *Feed
}

// Sessions keeps one panel per user for the life of the process.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     PanelDeps
}

// NewSessions returns an empty session registry. deps.Notifier is ignored;
// each session gets its own Feed.
func NewSessions(deps PanelDeps) *Sessions {
	return &Sessions{sessions: map[string]*Session{}, deps: deps}
}

// Get returns userID's session, creating it on first use. The boolean
// reports whether the session was just created.
func (s *Sessions) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess, false
	}
	feed := NewFeed()
	deps := s.deps
	deps.Notifier = feed
	sess := &Session{Panel: NewPanel(userID, deps), Feed: feed}
	s.sessions[userID] = sess
	return sess, true
}

// Drop forgets userID's session.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}
