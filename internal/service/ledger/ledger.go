package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/repository"
)

const (
	defaultCodePrefix = "UTBK"

	// Bounded retries: issuance conflicts are retried from the read step,
	// code collisions are regenerated inside one transaction
	defaultMaxConflictRetries = 3
	defaultMaxCodeAttempts    = 5
)

type Config struct {
	// Prefix for generated token codes, defaults to "UTBK"
	CodePrefix string

	MaxConflictRetries int
	MaxCodeAttempts    int
}

// Service is the ledger transaction engine: it converts exactly one credit
// into exactly one exam token, atomically.
type Service struct {
	storage repository.Storage
	codes   *CodeGenerator
	logger  logger.Logger

	maxConflictRetries int
	maxCodeAttempts    int
}

func NewService(cfg Config, storage repository.Storage, l logger.Logger) *Service {
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = defaultCodePrefix
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = defaultMaxConflictRetries
	}
	if cfg.MaxCodeAttempts == 0 {
		cfg.MaxCodeAttempts = defaultMaxCodeAttempts
	}

	return &Service{
		storage:            storage,
		codes:              NewCodeGenerator(cfg.CodePrefix),
		logger:             l,
		maxConflictRetries: cfg.MaxConflictRetries,
		maxCodeAttempts:    cfg.MaxCodeAttempts,
	}
}

// IssueToken spends one credit of the account and mints a token for it.
// The balance check, the decrement, the audit-trail append and the token
// insert commit together or not at all. A balance changed by another writer
// between the read and the commit restarts the whole operation; after
// maxConflictRetries the conflict is surfaced as ErrConcurrentModification.
func (s *Service) IssueToken(ctx context.Context, accountID uuid.UUID) (models.ExamToken, error) {
	var issued models.ExamToken

	for attempt := 1; ; attempt++ {
		err := s.storage.InTx(ctx, func(st repository.Storage) error {
			account, err := st.Account().GetByID(ctx, accountID)
			if err != nil {
				return err
			}

			if account.Credits < 1 {
				return apperrors.ErrInsufficientCredit
			}

			token, err := s.mintToken(ctx, st, account.ID)
			if err != nil {
				return err
			}

			// Compare-and-swap against the balance read above
			err = st.Account().SpendCredit(ctx, account.ID, account.Credits, token.Code)
			if err != nil {
				return err
			}

			issued = token
			return nil
		})

		switch {
		case err == nil:
			s.logger.Info("Token issued", "account_id", accountID, "code", issued.Code)
			return issued, nil

		case errors.Is(err, apperrors.ErrConcurrentModification) && attempt < s.maxConflictRetries:
			s.logger.Debug("Issuance conflict, retrying from read", "account_id", accountID, "attempt", attempt)
			continue

		default:
			return models.ExamToken{}, err
		}
	}
}

// mintToken inserts a token with a freshly generated code, regenerating on
// collision up to maxCodeAttempts times
func (s *Service) mintToken(ctx context.Context, st repository.Storage, accountID uuid.UUID) (models.ExamToken, error) {
	for attempt := 0; attempt < s.maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return models.ExamToken{}, err
		}

		token, err := st.Token().CreateToken(ctx, models.ExamToken{
			Code:      code,
			AccountID: accountID,
			Status:    models.TokenStatusActive,
			CreatedAt: time.Now(),
			IssuedVia: models.IssuedViaDashboard,
		})

		switch {
		case err == nil:
			return token, nil
		case errors.Is(err, apperrors.ErrCodeCollision):
			s.logger.Warn("Token code collision, regenerating", "code", code)
			continue
		default:
			return models.ExamToken{}, err
		}
	}

	// Rare enough to page on: either the code space is saturated or
	// randomness is broken
	s.logger.Error("Token code generation exhausted", "account_id", accountID, "attempts", s.maxCodeAttempts)
	return models.ExamToken{}, apperrors.ErrCodeGenerationExhausted
}

// TopUp applies a balance increase reported by the payment collaborator and
// records it in the credit event audit trail within one transaction.
func (s *Service) TopUp(ctx context.Context, accountID uuid.UUID, credits int64, price decimal.Decimal, providerRef string) (models.Account, error) {
	var account models.Account

	if credits < 1 {
		return account, fmt.Errorf("top-up must add at least one credit, got %d", credits)
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		_, err := st.Account().CreateCreditEvent(ctx, models.CreditEvent{
			ID:          uuid.New(),
			ProcessedAt: time.Now(),
			AccountID:   accountID,
			Delta:       credits,
			Price:       price,
			ProviderRef: providerRef,
		})
		if err != nil {
			return err
		}

		account, err = st.Account().AddCredits(ctx, accountID, credits)
		return err
	})
	if err != nil {
		return models.Account{}, err
	}

	s.logger.Info("Credits added", "account_id", accountID, "credits", credits, "provider_ref", providerRef)
	return account, nil
}

// CompleteToken applies a (code, score) result reported by the exam
// collaborator. The transition is one-shot: repeated reports return
// apperrors.ErrTokenAlreadyCompleted and never overwrite the stored score.
func (s *Service) CompleteToken(ctx context.Context, code string, score int64) (models.ExamToken, error) {
	token, err := s.storage.Token().CompleteToken(ctx, code, score)
	if err != nil {
		return token, err
	}

	s.logger.Info("Token completed", "code", code, "score", score)
	return token, nil
}

// ListTokens returns the account's tokens newest first
func (s *Service) ListTokens(ctx context.Context, accountID uuid.UUID) ([]models.ExamToken, error) {
	return s.storage.Token().ListByAccount(ctx, accountID)
}

// GetAccount returns the current account snapshot
func (s *Service) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetByID(ctx, accountID)
}
