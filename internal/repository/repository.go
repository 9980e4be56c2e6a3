package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/models"
)

type CreateAccountParams struct {
	Email        string
	PasswordHash string
	DisplayName  string
	School       string
}

// Account repository interface
type AccountRepo interface {
	// Create account with zero credits and verified=false
	// If account with the email exists must return apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, params CreateAccountParams) (models.Account, error)

	// Get account by id or email
	// If account not found must return apperrors.ErrAccountNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)

	// Mark account verified, reported by the identity collaborator
	SetVerified(ctx context.Context, id uuid.UUID) (models.Account, error)

	// Increase credits by delta (top-up path)
	AddCredits(ctx context.Context, id uuid.UUID, delta int64) (models.Account, error)

	// SpendCredit decrements credits by one and appends code to the audit
	// trail, but only if credits still equals expectedCredits. If the balance
	// was changed by another writer since it was read, must return
	// apperrors.ErrConcurrentModification and write nothing.
	SpendCredit(ctx context.Context, id uuid.UUID, expectedCredits int64, code string) error

	// Record a balance-increase event from the payment collaborator
	CreateCreditEvent(ctx context.Context, event models.CreditEvent) (models.CreditEvent, error)
}

// Exam token repository interface
type TokenRepo interface {
	// Create token record
	// If token with the code exists must return apperrors.ErrCodeCollision
	CreateToken(ctx context.Context, token models.ExamToken) (models.ExamToken, error)

	GetToken(ctx context.Context, code string) (models.ExamToken, error)

	// List tokens owned by account, newest first, code as tiebreak
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.ExamToken, error)

	// CompleteToken sets the score and the completed status exactly once.
	// A second report for the same code must return
	// apperrors.ErrTokenAlreadyCompleted and keep the stored score intact.
	CompleteToken(ctx context.Context, code string, score int64) (models.ExamToken, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) error

	// Mark token as used
	// If the token is already used, must not overwrite the existing 'usedAt'
	MarkUsed(ctx context.Context, tokenString string) (usedAt time.Time, err error)

	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

type Storage interface {
	Account() AccountRepo
	Token() TokenRepo
	Refresh() RefreshTokenRepo

	// InTx runs fn against a storage bound to one transaction.
	// Commits when fn returns nil, rolls back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}
