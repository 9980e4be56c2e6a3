package liveview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
)

// fakeReader serves projections from memory and can be told to fail
type fakeReader struct {
	mu      sync.Mutex
	account models.Account
	tokens  []models.ExamToken
	err     error
}

func (r *fakeReader) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.Account{}, r.err
	}
	if r.account.ID != id {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return r.account, nil
}

func (r *fakeReader) ListTokens(_ context.Context, _ uuid.UUID) ([]models.ExamToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.tokens, nil
}

func (r *fakeReader) set(fn func(*fakeReader)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// fakeFeed is a ChangeFeed fed by the test
type fakeFeed struct {
	ch chan uuid.UUID
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan uuid.UUID)}
}

func (f *fakeFeed) Changes(ctx context.Context) (<-chan uuid.UUID, error) {
	out := make(chan uuid.UUID)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-f.ch:
				if !ok {
					return
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func waitProjection(t *testing.T, sub *Subscription) models.Projection {
	t.Helper()

	select {
	case p, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed unexpectedly, err: %v", sub.Err())
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a projection")
		return models.Projection{}
	}
}

func TestSynchronizer(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	setup := func(t *testing.T) (*fakeReader, *fakeFeed, *fakeFeed, *Synchronizer) {
		reader := &fakeReader{account: models.Account{ID: accountID, Credits: 1}}
		accountFeed := newFakeFeed()
		tokenFeed := newFakeFeed()
		s := NewSynchronizer(reader, accountFeed, tokenFeed, logger.NewNoOpLogger())
		return reader, accountFeed, tokenFeed, s
	}

	t.Run("emits initial projection on subscribe", func(t *testing.T) {
		t.Parallel()
		_, _, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()

		p := waitProjection(t, sub)
		assert.Equal(t, accountID, p.Account.ID)
		assert.Equal(t, int64(1), p.Account.Credits)
	})

	t.Run("recomputes after account change", func(t *testing.T) {
		t.Parallel()
		reader, accountFeed, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()
		waitProjection(t, sub)

		reader.set(func(r *fakeReader) { r.account.Credits = 5 })
		accountFeed.ch <- accountID

		p := waitProjection(t, sub)
		assert.Equal(t, int64(5), p.Account.Credits)
	})

	t.Run("recomputes after token change", func(t *testing.T) {
		t.Parallel()
		reader, _, tokenFeed, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()
		waitProjection(t, sub)

		reader.set(func(r *fakeReader) {
			r.tokens = []models.ExamToken{{Code: "UTBK-AAAAA", AccountID: accountID}}
		})
		tokenFeed.ch <- accountID

		p := waitProjection(t, sub)
		require.Len(t, p.Tokens, 1)
		assert.Equal(t, "UTBK-AAAAA", p.Tokens[0].Code)
	})

	t.Run("skips other accounts", func(t *testing.T) {
		t.Parallel()
		reader, accountFeed, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()
		waitProjection(t, sub)

		accountFeed.ch <- uuid.New() // someone else changed

		reader.set(func(r *fakeReader) { r.account.Credits = 7 })
		accountFeed.ch <- accountID

		// The only emission is the relevant one
		p := waitProjection(t, sub)
		assert.Equal(t, int64(7), p.Account.Credits)
	})

	t.Run("slow consumer sees latest projection", func(t *testing.T) {
		t.Parallel()
		reader, accountFeed, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()

		// Do not consume: the initial projection sits in the buffer while
		// two more changes land
		for _, credits := range []int64{3, 9} {
			reader.set(func(r *fakeReader) { r.account.Credits = credits })
			accountFeed.ch <- accountID
		}

		// Both sends accepted means the pump never blocked; eventually the
		// buffered value is the newest one
		require.Eventually(t, func() bool {
			select {
			case p := <-sub.Updates():
				return p.Account.Credits == 9
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("close stops emissions", func(t *testing.T) {
		t.Parallel()
		_, _, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		waitProjection(t, sub)

		sub.Close()

		select {
		case _, ok := <-sub.Updates():
			assert.False(t, ok, "channel must be closed, not deliver")
		case <-time.After(2 * time.Second):
			t.Fatal("updates channel not closed after Close")
		}
		assert.NoError(t, sub.Err(), "deliberate close is not a failure")
	})

	t.Run("ctx cancellation stops emissions", func(t *testing.T) {
		t.Parallel()
		_, _, _, s := setup(t)

		ctx, cancel := context.WithCancel(t.Context())
		sub, err := s.Subscribe(ctx, accountID)
		require.NoError(t, err)
		waitProjection(t, sub)

		cancel()

		select {
		case _, ok := <-sub.Updates():
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("updates channel not closed after ctx cancellation")
		}
		assert.NoError(t, sub.Err())
	})

	t.Run("terminal read failure closes with error", func(t *testing.T) {
		t.Parallel()
		reader, accountFeed, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()
		waitProjection(t, sub)

		// A deleted account is terminal, no amount of retrying helps
		reader.set(func(r *fakeReader) { r.err = apperrors.ErrAccountNotFound })
		accountFeed.ch <- accountID

		select {
		case _, ok := <-sub.Updates():
			require.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("updates channel not closed after terminal failure")
		}
		assert.ErrorIs(t, sub.Err(), apperrors.ErrSubscriptionClosed)
	})

	t.Run("transient read failure is retried", func(t *testing.T) {
		t.Parallel()
		reader, accountFeed, _, s := setup(t)

		sub, err := s.Subscribe(t.Context(), accountID)
		require.NoError(t, err)
		defer sub.Close()
		waitProjection(t, sub)

		flaky := errors.New("connection reset")
		reader.set(func(r *fakeReader) { r.err = flaky })

		// Heal the reader while the pump is backing off
		go func() {
			time.Sleep(150 * time.Millisecond)
			reader.set(func(r *fakeReader) {
				r.err = nil
				r.account.Credits = 4
			})
		}()

		accountFeed.ch <- accountID

		p := waitProjection(t, sub)
		assert.Equal(t, int64(4), p.Account.Credits)
	})

	t.Run("subscribe fails for unknown account", func(t *testing.T) {
		t.Parallel()
		_, _, _, s := setup(t)

		_, err := s.Subscribe(t.Context(), uuid.New())

		assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
	})
}
