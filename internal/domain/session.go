package domain

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrIdentityMismatch = errors.New("session already authenticated as another identity")
)

// ChannelState is the handshake state of one live channel.
type ChannelState int

const (
	StateUnauthenticated ChannelState = iota
	StateAuthenticated
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks the handshake state of a channel.
//
// Unauthenticated -> Authenticated, and either of them -> Closed. Closed is
// terminal.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	state        ChannelState
	identity     UserIdentity
	lastActiveAt time.Time
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Authenticate binds the session to identity. first reports whether this call
// performed the Unauthenticated -> Authenticated transition; repeating it for
// the bound identity is a no-op.
func (s *Session) Authenticate(identity UserIdentity) (first bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return false, ErrSessionClosed
	case StateAuthenticated:
		if s.identity != identity {
			return false, ErrIdentityMismatch
		}
		s.lastActiveAt = time.Now()
		return false, nil
	}

	s.state = StateAuthenticated
	s.identity = identity
	s.lastActiveAt = time.Now()
	return true, nil
}

// Close moves the session to Closed. It reports false if it already was.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	return true
}

func (s *Session) State() ChannelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the bound identity, empty until authenticated. It is kept
// after close so the channel can still be unregistered.
func (s *Session) Identity() UserIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

func (s *Session) IsClosed() bool {
	return s.State() == StateClosed
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
