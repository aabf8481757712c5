// Package history stores bounded per-session conversation logs.
//
// A session log is append-only and ordered by turn timestamp. Appends for
// different sessions never contend; appends for one session are applied in
// timestamp order even when they race.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nadzzz/helpline/internal/message"
)

// Store is a keyed append-only turn log.
type Store interface {
	// Append adds a turn to the session log.
	Append(ctx context.Context, sessionID string, turn message.Turn) error

	// Recent returns up to limit most recent turns, oldest first. An unknown
	// session yields an empty slice and no error.
	Recent(ctx context.Context, sessionID string, limit int) ([]message.Turn, error)

	// Ping checks the backing store.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// ErrNoSession is returned when Append is called without a session id.
var ErrNoSession = errors.New("history: empty session id")

// Nop discards everything. It is used when history is disabled.
type Nop struct{}

func (Nop) Append(context.Context, string, message.Turn) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]message.Turn, error) { return nil, nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }

// Memory keeps sessions in process memory.
type Memory struct {
	maxTurns int
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	turns   []message.Turn
	touched time.Time
}

// NewMemory creates an in-memory store keeping at most maxTurns per session.
// Sessions idle for longer than ttl are dropped by Prune; ttl 0 keeps them.
func NewMemory(maxTurns int, ttl time.Duration) *Memory {
	return &Memory{
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (m *Memory) get(id string, create bool) *session {
	m.mu.RLock()
	s := m.sessions[id]
	m.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.sessions[id]; s == nil {
		s = &session{}
		m.sessions[id] = s
	}
	return s
}

// Append inserts turn in timestamp order and trims the log.
func (m *Memory) Append(_ context.Context, sessionID string, turn message.Turn) error {
	if sessionID == "" {
		return ErrNoSession
	}
	turn.SessionID = sessionID
	s := m.get(sessionID, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Equal timestamps keep arrival order.
	i := sort.Search(len(s.turns), func(i int) bool {
		return s.turns[i].Timestamp.After(turn.Timestamp)
	})
	s.turns = append(s.turns, message.Turn{})
	copy(s.turns[i+1:], s.turns[i:])
	s.turns[i] = turn

	if m.maxTurns > 0 && len(s.turns) > m.maxTurns {
		s.turns = append([]message.Turn(nil), s.turns[len(s.turns)-m.maxTurns:]...)
	}
	s.touched = m.now()
	return nil
}

// Recent returns a copy of the newest turns.
func (m *Memory) Recent(_ context.Context, sessionID string, limit int) ([]message.Turn, error) {
	s := m.get(sessionID, false)
	if s == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]message.Turn(nil), turns...), nil
}

// Prune drops sessions idle for longer than the TTL and reports how many.
func (m *Memory) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.touched.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
