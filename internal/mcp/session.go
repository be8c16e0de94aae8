package mcp

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Expiry reasons reported in the X-MCP-Session-Expired header.
const (
	expiredInactivity  = "inactivity"
	expiredMaxLifetime = "max-lifetime"
)

type session struct {
	id        string
	createdAt time.Time
	lastSeen  time.Time
	// protocolVersion is what initialize negotiated.
	protocolVersion string
}

// sessionStore tracks live sessions. A zero timeout disables that limit.
type sessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*session
	inactivity  time.Duration
	maxLifetime time.Duration
	now         func() time.Time
}

func newSessionStore(inactivity, maxLifetime time.Duration, now func() time.Time) *sessionStore {
	if now == nil {
		now = time.Now
	}
	return &sessionStore{
		sessions:    make(map[string]*session),
		inactivity:  inactivity,
		maxLifetime: maxLifetime,
		now:         now,
	}
}

func (s *sessionStore) create(protocolVersion string) (*session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &session{id: id, createdAt: now, lastSeen: now, protocolVersion: protocolVersion}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// touch validates id and records activity. An expired session is removed and
// its expiry reason returned; an unknown id yields ok=false and no reason.
func (s *sessionStore) touch(id string) (expired string, ok bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return "", false
	}
	if reason := s.expiry(sess, now); reason != "" {
		delete(s.sessions, id)
		return reason, false
	}
	sess.lastSeen = now
	return "", true
}

func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// sweep drops every expired session and returns how many were removed.
func (s *sessionStore) sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expiry(sess, now) != "" {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expiry(sess *session, now time.Time) string {
	if s.maxLifetime > 0 && now.Sub(sess.createdAt) > s.maxLifetime {
		return expiredMaxLifetime
	}
	if s.inactivity > 0 && now.Sub(sess.lastSeen) > s.inactivity {
		return expiredInactivity
	}
	return ""
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
