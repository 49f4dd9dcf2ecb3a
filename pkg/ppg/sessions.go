package ppg

import (
	"sort"
	"sync"
	"time"

	"github.com/thesyncim/ppg/pkg/ppg/internal"
)

// Sessions is a set of sessions keyed by device or stream identifier.
// Transports that multiplex several sensors (a broker topic per device, an
// RTP stream per SSRC) keep one Session per key so beat history never mixes
// across devices.
type Sessions struct {
	mu       sync.Mutex
	config   Config
	clock    internal.Clock
	sessions map[string]*Session

	// onPublish is installed on every session created by the set.
	onPublish func(key string, est PublishedEstimate)
}

// NewSessions creates an empty set. If clock is nil, a MonotonicClock is
// used.
func NewSessions(config Config, clock internal.Clock) *Sessions {
	if clock == nil {
		clock = internal.MonotonicClock{}
	}
	return &Sessions{
		config:   config,
		clock:    clock,
		sessions: make(map[string]*Session),
	}
}

// SetCallback registers an observer for estimates published by any session
// created after the call.
func (m *Sessions) SetCallback(cb func(key string, est PublishedEstimate)) {
	m.mu.Lock()
	m.onPublish = cb
	m.mu.Unlock()
}

// Get returns the session for key, creating it if needed.
func (m *Sessions) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(m.config, m.clock)
	if cb := m.onPublish; cb != nil {
		s.SetCallback(func(est PublishedEstimate) { cb(key, est) })
	}
	m.sessions[key] = s
	return s
}

// Lookup returns the session for key without creating one.
func (m *Sessions) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Feed routes a record to the session for key.
func (m *Sessions) Feed(key string, rec RawRecord) (Result, bool, error) {
	return m.Get(key).Feed(rec)
}

// Remove closes and forgets the session for key.
func (m *Sessions) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if ok {
		_ = s.Close()
	}
}

// CloseIdle closes and removes sessions with no activity for longer than
// timeout. It returns the removed keys in sorted order.
func (m *Sessions) CloseIdle(timeout time.Duration) []string {
	now := m.clock.Now()

	var idle []*Session
	var keys []string

	m.mu.Lock()
	for key, s := range m.sessions {
		if now.Sub(s.LastActivity()) > timeout {
			idle = append(idle, s)
			keys = append(keys, key)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		_ = s.Close()
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the active keys in sorted order.
func (m *Sessions) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of active sessions.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Sessions) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
