package liveview

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruangsim/examledger/internal/logger"
)

const (
	// Notification channels raised by the store triggers
	ChannelAccountChanged = "account_changed"
	ChannelTokenChanged   = "token_changed"
)

// PGFeed is a ChangeFeed over postgres LISTEN/NOTIFY. Each attachment holds
// a dedicated connection from the pool for the lifetime of the subscription.
type PGFeed struct {
	pool    *pgxpool.Pool
	channel string
	logger  logger.Logger
}

func NewPGFeed(pool *pgxpool.Pool, channel string, l logger.Logger) *PGFeed {
	return &PGFeed{
		pool:    pool,
		channel: channel,
		logger:  l,
	}
}

func (f *PGFeed) Changes(ctx context.Context) (<-chan uuid.UUID, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error while acquiring listen connection. Err: %w", err)
	}

	// Channel name is a package constant, not user input
	_, err = conn.Exec(ctx, "LISTEN "+f.channel)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("error while listening on %q. Err: %w", f.channel, err)
	}

	out := make(chan uuid.UUID)

	go func() {
		defer close(out)
		defer func() {
			// A released connection must not keep the LISTEN registration.
			// Closing it makes the pool discard it instead of reusing it.
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Error("Listen connection lost", "channel", f.channel, "error", err)
				}
				return
			}

			id, err := uuid.Parse(notification.Payload)
			if err != nil {
				f.logger.Warn("Malformed notification payload", "channel", f.channel, "payload", notification.Payload)
				continue
			}

			select {
			case out <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
