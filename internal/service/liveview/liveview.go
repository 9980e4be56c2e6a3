package liveview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
)

const (
	defaultMaxReadRetries  = 5
	defaultInitialBackoff  = 100 * time.Millisecond
	defaultMaxBackoffDelay = 2 * time.Second
)

// Reader recomputes projections from the stores. It only observes, never
// mutates, so it may run concurrently with any number of ledger transactions.
type Reader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	ListTokens(ctx context.Context, accountID uuid.UUID) ([]models.ExamToken, error)
}

// ChangeFeed delivers ids of accounts whose underlying state changed.
// The returned channel closes when the feed fails terminally or ctx ends.
type ChangeFeed interface {
	Changes(ctx context.Context) (<-chan uuid.UUID, error)
}

// Synchronizer keeps per-observer projections in sync with the stores.
// It is polymorphic over the two change feeds: one for account records,
// one for the token set.
type Synchronizer struct {
	reader      Reader
	accountFeed ChangeFeed
	tokenFeed   ChangeFeed
	logger      logger.Logger
}

func NewSynchronizer(reader Reader, accountFeed ChangeFeed, tokenFeed ChangeFeed, l logger.Logger) *Synchronizer {
	return &Synchronizer{
		reader:      reader,
		accountFeed: accountFeed,
		tokenFeed:   tokenFeed,
		logger:      l,
	}
}

// Subscription is one observer's standing feed of projections.
// Updates are coalesced: a slow consumer sees the latest projection, never
// a backlog. After the updates channel closes, Err reports why: nil after
// Close or owner ctx cancellation, an ErrSubscriptionClosed-wrapped cause
// after a terminal failure.
type Subscription struct {
	updates chan models.Projection
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *Subscription) Updates() <-chan models.Projection {
	return s.updates
}

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription, detaches both feeds and releases the
// projection. Idempotent; no emissions happen after it returns the channel
// closed.
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Subscribe attaches both change feeds for the account and starts streaming
// projections. The first projection is emitted immediately; afterwards every
// relevant change triggers a recompute. Cancel ctx or call Close to detach.
func (s *Synchronizer) Subscribe(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	accountCh, err := s.accountFeed.Changes(subCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error while attaching account feed. Err: %w", err)
	}

	tokenCh, err := s.tokenFeed.Changes(subCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error while attaching token feed. Err: %w", err)
	}

	projection, err := s.recompute(subCtx, accountID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error while reading initial projection. Err: %w", err)
	}

	sub := &Subscription{
		updates: make(chan models.Projection, 1),
		cancel:  cancel,
	}
	sub.updates <- projection

	go s.pump(subCtx, accountID, sub, accountCh, tokenCh)

	return sub, nil
}

func (s *Synchronizer) pump(ctx context.Context, accountID uuid.UUID, sub *Subscription, accountCh, tokenCh <-chan uuid.UUID) {
	defer close(sub.updates)

	for {
		var changed uuid.UUID
		var ok bool

		select {
		case <-ctx.Done():
			return

		case changed, ok = <-accountCh:
			if !ok {
				sub.fail(fmt.Errorf("%w: account feed ended", apperrors.ErrSubscriptionClosed))
				return
			}

		case changed, ok = <-tokenCh:
			if !ok {
				sub.fail(fmt.Errorf("%w: token feed ended", apperrors.ErrSubscriptionClosed))
				return
			}
		}

		// Feeds are shared: skip other observers' accounts
		if changed != accountID {
			continue
		}

		projection, err := s.recompute(ctx, accountID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sub.fail(fmt.Errorf("%w: %v", apperrors.ErrSubscriptionClosed, err))
			return
		}

		// Latest-wins: replace a not-yet-consumed projection instead of
		// blocking the pump on a slow observer
		select {
		case sub.updates <- projection:
		default:
			select {
			case <-sub.updates:
			default:
			}
			sub.updates <- projection
		}
	}
}

// recompute reads a consistent snapshot of the latest known state of both
// feeds. Transient read errors are retried with capped backoff; a missing
// account is terminal.
func (s *Synchronizer) recompute(ctx context.Context, accountID uuid.UUID) (models.Projection, error) {
	var projection models.Projection
	var lastErr error

	backoff := defaultInitialBackoff

	for attempt := 0; attempt < defaultMaxReadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return projection, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > defaultMaxBackoffDelay {
				backoff = defaultMaxBackoffDelay
			}
		}

		account, err := s.reader.GetAccount(ctx, accountID)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrAccountNotFound):
			return projection, err
		default:
			lastErr = err
			s.logger.Warn("Projection read failed, retrying", "account_id", accountID, "error", err)
			continue
		}

		tokens, err := s.reader.ListTokens(ctx, accountID)
		if err != nil {
			lastErr = err
			s.logger.Warn("Projection read failed, retrying", "account_id", accountID, "error", err)
			continue
		}

		projection.Account = account
		projection.Tokens = tokens
		return projection, nil
	}

	return projection, fmt.Errorf("projection reads exhausted. Err: %w", lastErr)
}
