package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expiryRecorder collects expired session ids
type expiryRecorder struct {
	mu      sync.Mutex
	expired []uuid.UUID
}

func (r *expiryRecorder) record(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, id)
}

func (r *expiryRecorder) snapshot() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.expired...)
}

func TestMonitor(t *testing.T) {
	t.Parallel()

	t.Run("expires idle session exactly once", func(t *testing.T) {
		t.Parallel()
		rec := &expiryRecorder{}
		m := NewMonitor(30*time.Millisecond, rec.record)
		defer m.Close()
		id := uuid.New()

		m.RecordActivity(id)

		require.Eventually(t, func() bool {
			return len(rec.snapshot()) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []uuid.UUID{id}, rec.snapshot())
		assert.False(t, m.Pending(id), "fired timer must be removed")

		// No second firing
		time.Sleep(100 * time.Millisecond)
		assert.Len(t, rec.snapshot(), 1)
	})

	t.Run("activity reschedules instead of stacking", func(t *testing.T) {
		t.Parallel()
		rec := &expiryRecorder{}
		m := NewMonitor(80*time.Millisecond, rec.record)
		defer m.Close()
		id := uuid.New()

		// Three activity signals in a row: only the last timer may fire
		m.RecordActivity(id)
		time.Sleep(40 * time.Millisecond)
		m.RecordActivity(id)
		time.Sleep(40 * time.Millisecond)
		m.RecordActivity(id)

		// The first timer's deadline has long passed by now
		time.Sleep(40 * time.Millisecond)
		assert.Empty(t, rec.snapshot(), "superseded timers must not fire")
		assert.True(t, m.Pending(id))

		require.Eventually(t, func() bool {
			return len(rec.snapshot()) == 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("forget cancels the pending timer", func(t *testing.T) {
		t.Parallel()
		rec := &expiryRecorder{}
		m := NewMonitor(30*time.Millisecond, rec.record)
		defer m.Close()
		id := uuid.New()

		m.RecordActivity(id)
		m.Forget(id)

		assert.False(t, m.Pending(id))
		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, rec.snapshot(), "forgotten session must not expire")
	})

	t.Run("tracks sessions independently", func(t *testing.T) {
		t.Parallel()
		rec := &expiryRecorder{}
		m := NewMonitor(30*time.Millisecond, rec.record)
		defer m.Close()
		first, second := uuid.New(), uuid.New()

		m.RecordActivity(first)
		m.RecordActivity(second)
		m.Forget(first)

		require.Eventually(t, func() bool {
			return len(rec.snapshot()) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []uuid.UUID{second}, rec.snapshot())
	})

	t.Run("close cancels everything", func(t *testing.T) {
		t.Parallel()
		rec := &expiryRecorder{}
		m := NewMonitor(30*time.Millisecond, rec.record)
		id := uuid.New()

		m.RecordActivity(id)
		m.Close()

		time.Sleep(100 * time.Millisecond)
		assert.Empty(t, rec.snapshot())

		// Activity after close is a no-op
		m.RecordActivity(id)
		assert.False(t, m.Pending(id))
	})
}
