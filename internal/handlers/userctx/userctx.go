package userctx

import (
	"context"

	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/service/session"
)

type ctxKey string

const (
	accountKey ctxKey = "account"
	sessionKey ctxKey = "session"
)

// Create a new context carrying the authenticated account and its session
func New(ctx context.Context, a models.Account, s *session.Session) context.Context {
	ctx = context.WithValue(ctx, accountKey, a)
	return context.WithValue(ctx, sessionKey, s)
}

// Extract the account from the context
func Account(ctx context.Context) (models.Account, bool) {
	a, ok := ctx.Value(accountKey).(models.Account)
	return a, ok
}

// Extract the session from the context
func Session(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}
