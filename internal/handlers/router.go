package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ruangsim/examledger/internal/handlers/middleware"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/service/auth"
	"github.com/ruangsim/examledger/internal/service/liveview"
	"github.com/ruangsim/examledger/internal/service/session"
)

type authService interface {
	Register(ctx context.Context, params auth.RegisterParams) (models.Account, models.TokenPair, error)
	Login(ctx context.Context, email string, password string) (models.Account, models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, sessionID uuid.UUID, refresh string)
	ConfirmVerified(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	Auth(ctx context.Context, r *http.Request) (models.Account, *session.Session, error)
}

type ledgerService interface {
	IssueToken(ctx context.Context, accountID uuid.UUID) (models.ExamToken, error)
	ListTokens(ctx context.Context, accountID uuid.UUID) ([]models.ExamToken, error)
	CompleteToken(ctx context.Context, code string, score int64) (models.ExamToken, error)
	TopUp(ctx context.Context, accountID uuid.UUID, credits int64, price decimal.Decimal, providerRef string) (models.Account, error)
}

type viewService interface {
	Subscribe(ctx context.Context, accountID uuid.UUID) (*liveview.Subscription, error)
}

type verifierClient interface {
	Resend(ctx context.Context, accountID uuid.UUID, email string) error
}

type activityRecorder interface {
	RecordActivity(sessionID uuid.UUID)
}

type RouterConfig struct {
	Auth     authService
	Ledger   ledgerService
	Views    viewService
	Verifier verifierClient
	Recorder activityRecorder

	// Base URL of the external exam application, used to build handoff links
	ExamAddr string

	Logger logger.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	l := cfg.Logger

	authorized := func(h http.Handler) http.Handler {
		return middleware.AuthMiddleware(cfg.Auth, cfg.Recorder)(h)
	}
	verified := func(h http.Handler) http.Handler {
		return authorized(middleware.VerifiedOnly(h))
	}

	mux.Handle("POST /api/user/register", handleRegister(cfg.Auth, l))
	mux.Handle("POST /api/user/login", handleLogin(cfg.Auth, l))
	mux.Handle("POST /api/user/refresh", handleTokenRefresh(cfg.Auth, l))
	mux.Handle("POST /api/user/logout", authorized(handleLogout(cfg.Auth)))

	mux.Handle("GET /api/user/me", authorized(handleMe()))
	mux.Handle("POST /api/user/verification/resend", authorized(handleResendVerification(cfg.Verifier, l)))

	mux.Handle("POST /api/user/tokens", verified(handleIssueToken(cfg.Ledger, cfg.ExamAddr, l)))
	mux.Handle("GET /api/user/tokens", verified(handleListTokens(cfg.Ledger, cfg.ExamAddr, l)))
	mux.Handle("GET /api/user/stream", verified(handleStream(cfg.Views, cfg.ExamAddr, l)))

	mux.Handle("POST /api/partner/results", handleExamResult(cfg.Ledger, l))
	mux.Handle("POST /api/partner/topup", handleTopUp(cfg.Ledger, l))
	mux.Handle("POST /api/partner/verified", handleVerified(cfg.Auth, l))

	return middleware.LoggerMiddleware(l)(mux)
}

// decodeOptional reads a JSON body if one is present; an empty or malformed
// body leaves the target zero-valued
func decodeOptional(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(target)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
