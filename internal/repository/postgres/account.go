package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, created_at, email, password_hash, display_name, school, verified, credits, token_codes)
VALUES ($1, $2, $3, $4, $5, $6, false, 0, '{}')
RETURNING id, created_at, email, password_hash, display_name, school, verified, credits, token_codes
`

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), time.Now(), arg.Email, arg.PasswordHash, arg.DisplayName, arg.School)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, email, password_hash, display_name, school, verified, credits, token_codes
FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	return collectAccount(rows)
}

const getAccountByEmail = `-- name: GetAccountByEmail
SELECT id, created_at, email, password_hash, display_name, school, verified, credits, token_codes
FROM accounts
WHERE email = $1
`

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByEmail, email)
	return collectAccount(rows)
}

const setVerified = `-- name: SetVerified
UPDATE accounts
SET verified = true
WHERE id = $1
RETURNING id, created_at, email, password_hash, display_name, school, verified, credits, token_codes
`

func (r *AccountRepo) SetVerified(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, setVerified, id)
	return collectAccount(rows)
}

const addCredits = `-- name: AddCredits
UPDATE accounts
SET credits = credits + $2
WHERE id = $1
RETURNING id, created_at, email, password_hash, display_name, school, verified, credits, token_codes
`

func (r *AccountRepo) AddCredits(ctx context.Context, id uuid.UUID, delta int64) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, addCredits, id, delta)
	return collectAccount(rows)
}

// Compare-and-swap spend: the decrement applies only if the balance is still
// exactly the one the caller read. Zero rows means another writer got there
// first and the whole issuance must be retried from the read.
const spendCredit = `-- name: SpendCredit
UPDATE accounts
SET credits = credits - 1, token_codes = array_append(token_codes, $3)
WHERE id = $1 AND credits = $2
RETURNING id
`

func (r *AccountRepo) SpendCredit(ctx context.Context, id uuid.UUID, expectedCredits int64, code string) error {
	rows, _ := r.DB.Query(ctx, spendCredit, id, expectedCredits, code)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrConcurrentModification
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const createCreditEvent = `-- name: CreateCreditEvent
INSERT INTO credit_events (id, processed_at, account_id, delta, price, provider_ref)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, processed_at, account_id, delta, price, provider_ref
`

func (r *AccountRepo) CreateCreditEvent(ctx context.Context, event models.CreditEvent) (models.CreditEvent, error) {
	rows, _ := r.DB.Query(ctx, createCreditEvent, event.ID, event.ProcessedAt, event.AccountID, event.Delta, event.Price, event.ProviderRef)
	created, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.CreditEvent, error) {
		var e models.CreditEvent
		err := row.Scan(&e.ID, &e.ProcessedAt, &e.AccountID, &e.Delta, &e.Price, &e.ProviderRef)
		return e, err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrAccountNotFound
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Email, &a.PasswordHash, &a.DisplayName, &a.School, &a.Verified, &a.Credits, &a.TokenCodes)
	return a, err
}
