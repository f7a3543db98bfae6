package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSessionHandshake(t *testing.T) {
	s := NewSessionStore(time.Hour)
	id := s.Begin("state-1")

	state, ok := s.State(id)
	require.True(t, ok)
	assert.Equal(t, "state-1", state)

	_, ok = s.Token(id)
	assert.False(t, ok)

	assert.False(t, s.Complete(id, "other", &oauth2.Token{AccessToken: "tok"}))
	require.True(t, s.Complete(id, "state-1", &oauth2.Token{AccessToken: "tok"}))

	// The state is single use
	assert.False(t, s.Complete(id, "state-1", &oauth2.Token{AccessToken: "tok2"}))
	_, ok = s.State(id)
	assert.False(t, ok)

	tok, ok := s.Token(id)
	require.True(t, ok)
	assert.Equal(t, "tok", tok.AccessToken)

	tok.AccessToken = "mutated"
	again, _ := s.Token(id)
	assert.Equal(t, "tok", again.AccessToken)
}

func TestSessionExpiry(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSessionStore(time.Minute)
	s.now = func() time.Time { return clock }

	id := s.Begin("state")
	require.True(t, s.Complete(id, "state", &oauth2.Token{AccessToken: "tok"}))

	clock = clock.Add(59 * time.Second)
	_, ok := s.Token(id)
	assert.True(t, ok)

	clock = clock.Add(time.Second)
	_, ok = s.Token(id)
	assert.False(t, ok)
}

func TestSessionSweepAndDelete(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSessionStore(time.Minute)
	s.now = func() time.Time { return clock }

	old := s.Begin("a")
	clock = clock.Add(2 * time.Minute)
	fresh := s.Begin("b")

	s.mu.Lock()
	_, oldKept := s.sessions[old]
	s.mu.Unlock()
	assert.False(t, oldKept)

	s.Delete(fresh)
	_, ok := s.State(fresh)
	assert.False(t, ok)
}

func TestSessionUnknownID(t *testing.T) {
	s := NewSessionStore(0)
	assert.Equal(t, time.Hour, s.ttl)
	assert.False(t, s.Complete("missing", "", &oauth2.Token{}))
	_, ok := s.State("missing")
	assert.False(t, ok)
}
