package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  State
		event    Event
		verified bool
		want     State
	}{
		{"login unverified", StateUnauthenticated, EventLogin, false, StateAuthenticatedUnverified},
		{"login verified", StateUnauthenticated, EventLogin, true, StateAuthenticatedVerified},
		{"verification promotes", StateAuthenticatedUnverified, EventVerified, true, StateAuthenticatedVerified},
		{"verification on verified is noop", StateAuthenticatedVerified, EventVerified, true, StateAuthenticatedVerified},
		{"verification without session is noop", StateUnauthenticated, EventVerified, true, StateUnauthenticated},
		{"logout from unverified", StateAuthenticatedUnverified, EventLogout, false, StateUnauthenticated},
		{"logout from verified", StateAuthenticatedVerified, EventLogout, false, StateUnauthenticated},
		{"logout when already out", StateUnauthenticated, EventLogout, false, StateUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transition(tt.current, tt.event, tt.verified)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate(t *testing.T) {
	t.Parallel()

	newGate := func(t *testing.T) *Gate {
		g := NewGate(time.Hour, logger.NewNoOpLogger())
		t.Cleanup(g.Close)
		return g
	}

	t.Run("begin creates live session", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		accountID := uuid.New()

		sess := g.Begin(accountID, false)

		assert.Equal(t, accountID, sess.AccountID)
		assert.Equal(t, StateAuthenticatedUnverified, sess.State)
		assert.False(t, sess.CanOperate(), "unverified session must not operate")
		assert.NoError(t, sess.Context().Err())

		got, err := g.Get(sess.ID)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})

	t.Run("verified login can operate", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)

		sess := g.Begin(uuid.New(), true)

		assert.Equal(t, StateAuthenticatedVerified, sess.State)
		assert.True(t, sess.CanOperate())
	})

	t.Run("get unknown session", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)

		_, err := g.Get(uuid.New())

		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("promote flips every session of the account", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		accountID := uuid.New()
		mine := g.Begin(accountID, false)
		alsoMine := g.Begin(accountID, false)
		other := g.Begin(uuid.New(), false)

		g.Promote(accountID)

		assert.True(t, mine.CanOperate())
		assert.True(t, alsoMine.CanOperate())
		assert.False(t, other.CanOperate(), "other accounts must stay unverified")
	})

	t.Run("end tears the session down", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		sess := g.Begin(uuid.New(), true)

		g.End(sess.ID, ReasonLogout)

		_, err := g.Get(sess.ID)
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		assert.Error(t, sess.Context().Err(), "session context must be cancelled")
		assert.Equal(t, StateUnauthenticated, sess.State)
	})

	t.Run("ended reason is consumed once", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		sess := g.Begin(uuid.New(), true)

		g.End(sess.ID, ReasonInactivity)

		reason, ok := g.EndedReason(sess.ID)
		require.True(t, ok)
		assert.Equal(t, ReasonInactivity, reason)

		_, ok = g.EndedReason(sess.ID)
		assert.False(t, ok, "reason must be gone after the first read")
	})

	t.Run("logout leaves no ended reason", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		sess := g.Begin(uuid.New(), true)

		g.End(sess.ID, ReasonLogout)

		_, ok := g.EndedReason(sess.ID)
		assert.False(t, ok, "logout is never asked about afterwards")
	})

	t.Run("stale ended reasons are pruned", func(t *testing.T) {
		t.Parallel()
		g := NewGate(40*time.Millisecond, logger.NewNoOpLogger())
		t.Cleanup(g.Close)
		stale := g.Begin(uuid.New(), true)
		g.End(stale.ID, ReasonInactivity)

		time.Sleep(60 * time.Millisecond)
		fresh := g.Begin(uuid.New(), true)
		g.End(fresh.ID, ReasonInactivity)

		_, ok := g.EndedReason(stale.ID)
		assert.False(t, ok, "entries older than the window must be dropped")

		reason, ok := g.EndedReason(fresh.ID)
		require.True(t, ok)
		assert.Equal(t, ReasonInactivity, reason)
	})

	t.Run("record activity bumps last activity", func(t *testing.T) {
		t.Parallel()
		g := newGate(t)
		sess := g.Begin(uuid.New(), true)
		before := sess.LastActivity

		time.Sleep(5 * time.Millisecond)
		g.RecordActivity(sess.ID)

		assert.True(t, sess.LastActivity.After(before))
	})

	t.Run("idle session expires with inactivity reason", func(t *testing.T) {
		t.Parallel()
		g := NewGate(30*time.Millisecond, logger.NewNoOpLogger())
		t.Cleanup(g.Close)
		sess := g.Begin(uuid.New(), true)

		require.Eventually(t, func() bool {
			_, err := g.Get(sess.ID)
			return err != nil
		}, 2*time.Second, 5*time.Millisecond)

		reason, ok := g.EndedReason(sess.ID)
		require.True(t, ok)
		assert.Equal(t, ReasonInactivity, reason)
		assert.Error(t, sess.Context().Err())
	})

	t.Run("activity keeps the session alive", func(t *testing.T) {
		t.Parallel()
		g := NewGate(60*time.Millisecond, logger.NewNoOpLogger())
		t.Cleanup(g.Close)
		sess := g.Begin(uuid.New(), true)

		for range 4 {
			time.Sleep(30 * time.Millisecond)
			g.RecordActivity(sess.ID)
		}

		_, err := g.Get(sess.ID)
		assert.NoError(t, err, "active session must survive past the window")
	})

	t.Run("close cancels all sessions", func(t *testing.T) {
		t.Parallel()
		g := NewGate(time.Hour, logger.NewNoOpLogger())
		first := g.Begin(uuid.New(), true)
		second := g.Begin(uuid.New(), false)

		g.Close()

		assert.Error(t, first.Context().Err())
		assert.Error(t, second.Context().Err())
	})
}
