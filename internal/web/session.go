package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// session is the server-side state behind a session cookie.
type session struct {
	oauthState string
	token      *oauth2.Token
	expires    time.Time
}

// SessionStore keeps sessions in memory until their TTL runs out.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Begin starts a session for an authorization handshake and returns its id.
func (s *SessionStore) Begin(oauthState string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	id := uuid.NewString()
	s.sessions[id] = &session{oauthState: oauthState, expires: s.now().Add(s.ttl)}
	return id
}

// Complete stores tok in session id if state matches the handshake state.
func (s *SessionStore) Complete(id, state string, tok *oauth2.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok || sess.oauthState == "" || sess.oauthState != state {
		return false
	}
	sess.oauthState = ""
	sess.token = tok
	sess.expires = s.now().Add(s.ttl)
	return true
}

// State returns the pending handshake state of session id.
func (s *SessionStore) State(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok || sess.oauthState == "" {
		return "", false
	}
	return sess.oauthState, true
}

// Token returns a copy of the token stored in session id.
func (s *SessionStore) Token(id string) (*oauth2.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok || sess.token == nil {
		return nil, false
	}
	tok := *sess.token
	return &tok, true
}

// Delete ends session id.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// live must be called with mu held.
func (s *SessionStore) live(id string) (*session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// sweep drops expired sessions. It must be called with mu held.
func (s *SessionStore) sweep() {
	now := s.now()
	for id, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, id)
		}
	}
}
