package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StartsUnauthenticated(t *testing.T) {
	s := NewSession("c1")
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Identity())
}

func TestSession_Authenticate(t *testing.T) {
	s := NewSession("c1")

	first, err := s.Authenticate("alice")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, UserIdentity("alice"), s.Identity())

	first, err = s.Authenticate("alice")
	require.NoError(t, err)
	assert.False(t, first, "re-authenticating the same identity is not a transition")

	_, err = s.Authenticate("bob")
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Equal(t, UserIdentity("alice"), s.Identity())
}

func TestSession_CloseIsTerminal(t *testing.T) {
	for _, authed := range []bool{false, true} {
		s := NewSession("c1")
		if authed {
			_, err := s.Authenticate("alice")
			require.NoError(t, err)
		}

		assert.True(t, s.Close())
		assert.False(t, s.Close())
		assert.True(t, s.IsClosed())

		_, err := s.Authenticate("alice")
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.Equal(t, StateClosed, s.State())
	}
}

func TestSession_UpdateActivity(t *testing.T) {
	s := NewSession("c1")
	before := s.LastActiveAt()
	time.Sleep(2 * time.Millisecond)
	s.UpdateActivity()
	assert.True(t, s.LastActiveAt().After(before))
}

func TestChannelState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", ChannelState(42).String())
}
