package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/repository"
	"github.com/ruangsim/examledger/internal/service/session"
)

type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// JWT MAC algorithm, defaults to HS256
	Alg string

	// Hasher used during registration and login
	// Defaults to BcryptHasher
	Hasher PasswordHasher

	// Access and refresh token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
	School      string
}

// Service authenticates students and owns the session lifecycle together
// with the gate
type Service struct {
	token   TokenManager
	hasher  PasswordHasher
	storage repository.Storage
	gate    *session.Gate
	logger  logger.Logger
}

func NewService(cfg Config, storage repository.Storage, gate *session.Gate, l logger.Logger) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}

	return &Service{
		token: TokenManager{
			key:         cfg.SecretKey,
			alg:         jwt.GetSigningMethod(cfg.Alg),
			accessTTL:   cfg.AccessTTL,
			refreshTTL:  cfg.RefreshTTL,
			refreshRepo: storage.Refresh(),
		},
		hasher:  cfg.Hasher,
		storage: storage,
		gate:    gate,
		logger:  l,
	}, nil
}

// Register creates the account with zero credits and unverified state and
// opens its first session
func (s *Service) Register(ctx context.Context, params RegisterParams) (models.Account, models.TokenPair, error) {
	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.Account{}, models.TokenPair{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	account, err := s.storage.Account().CreateAccount(ctx, repository.CreateAccountParams{
		Email:        params.Email,
		PasswordHash: hash,
		DisplayName:  params.DisplayName,
		School:       params.School,
	})
	if err != nil {
		return models.Account{}, models.TokenPair{}, err
	}

	pair, err := s.openSession(ctx, account)
	return account, pair, err
}

// Login checks credentials and opens a session. An identity without an
// account record fails outright; nothing is fabricated on the fly.
func (s *Service) Login(ctx context.Context, email string, password string) (models.Account, models.TokenPair, error) {
	account, err := s.storage.Account().GetByEmail(ctx, email)
	if err != nil {
		return models.Account{}, models.TokenPair{}, apperrors.ErrAccountNotFound
	}

	err = s.hasher.Compare(account.PasswordHash, password)
	if err != nil {
		return models.Account{}, models.TokenPair{}, apperrors.ErrAccountNotFound
	}

	pair, err := s.openSession(ctx, account)
	return account, pair, err
}

// Refresh rotates the pair and opens a fresh session; the refresh token is
// single use
func (s *Service) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	used, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	account, err := s.storage.Account().GetByID(ctx, used.AccountID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.openSession(ctx, account)
}

// Logout revokes the refresh token and ends the session. Equivalent to the
// inactivity expiry, except for the reason shown to the user.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID, refresh string) {
	if refresh != "" {
		if _, err := s.token.UseRefresh(ctx, refresh); err != nil {
			s.logger.Debug("Refresh token not revoked on logout", "error", err)
		}
	}

	s.gate.End(sessionID, session.ReasonLogout)
}

// ConfirmVerified applies the external verification confirmation: flips the
// stored flag and promotes any live session of the account
func (s *Service) ConfirmVerified(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	account, err := s.storage.Account().SetVerified(ctx, accountID)
	if err != nil {
		return account, err
	}

	s.gate.Promote(accountID)
	return account, nil
}

func (s *Service) openSession(ctx context.Context, account models.Account) (models.TokenPair, error) {
	sess := s.gate.Begin(account.ID, account.Verified)

	pair, err := s.token.GeneratePair(ctx, account.ID, sess.ID)
	if err != nil {
		s.gate.End(sess.ID, session.ReasonLogout)
		return pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// Auth resolves the request to an account and its live session
func (s *Service) Auth(ctx context.Context, r *http.Request) (models.Account, *session.Session, error) {
	header := r.Header.Get("Authorization")
	access, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || access == "" {
		return models.Account{}, nil, errors.New("missing bearer token")
	}

	claims, err := s.token.ParseAccess(access)
	if err != nil {
		return models.Account{}, nil, err
	}

	sess, err := s.gate.Get(claims.SessionID)
	if err != nil {
		if reason, ended := s.gate.EndedReason(claims.SessionID); ended && reason == session.ReasonInactivity {
			return models.Account{}, nil, fmt.Errorf("session ended due to inactivity: %w", apperrors.ErrSessionNotFound)
		}
		return models.Account{}, nil, err
	}

	if sess.AccountID != claims.AccountID {
		return models.Account{}, nil, errors.New("session does not belong to this account")
	}

	account, err := s.storage.Account().GetByID(ctx, sess.AccountID)
	if err != nil {
		return models.Account{}, nil, err
	}

	return account, sess, nil
}
