package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

// Create token with the candidate code
// ON CONFLICT DO NOTHING keeps the enclosing transaction usable when the
// code collides, so the caller can regenerate and try again.
const createToken = `-- name: CreateToken
INSERT INTO exam_tokens (code, account_id, status, score, created_at, issued_via, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT DO NOTHING
RETURNING code, account_id, status, score, created_at, issued_via, completed_at
`

func (r *TokenRepo) CreateToken(ctx context.Context, token models.ExamToken) (models.ExamToken, error) {
	rows, _ := r.DB.Query(ctx, createToken, token.Code, token.AccountID, token.Status, token.Score, token.CreatedAt, token.IssuedVia, token.CompletedAt)
	created, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, pgx.ErrNoRows):
		return created, apperrors.ErrCodeCollision
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getToken = `-- name: GetToken
SELECT code, account_id, status, score, created_at, issued_via, completed_at
FROM exam_tokens
WHERE code = $1
`

func (r *TokenRepo) GetToken(ctx context.Context, code string) (models.ExamToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, code)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const listTokensByAccount = `-- name: ListTokensByAccount
SELECT code, account_id, status, score, created_at, issued_via, completed_at
FROM exam_tokens
WHERE account_id = $1
ORDER BY created_at DESC, code ASC
`

func (r *TokenRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.ExamToken, error) {
	rows, _ := r.DB.Query(ctx, listTokensByAccount, accountID)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

// Complete token if it not completed yet
// Must not rewrite the score of already completed tokens
const completeToken = `-- name: CompleteToken
UPDATE exam_tokens
SET score = COALESCE(score, $2),
    status = 'completed',
    completed_at = COALESCE(completed_at, $3)
WHERE code = $1
RETURNING code, account_id, status, score, created_at, issued_via, completed_at
`

func (r *TokenRepo) CompleteToken(ctx context.Context, code string, score int64) (models.ExamToken, error) {
	// timestamptz keeps microseconds; a finer value never round-trips equal
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, completeToken, code, score, now)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil && token.CompletedAt != nil && token.CompletedAt.Equal(now):
		return token, nil
	case err == nil: // completedAt != now == token was completed earlier
		return token, apperrors.ErrTokenAlreadyCompleted
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

func rowToToken(row pgx.CollectableRow) (models.ExamToken, error) {
	var t models.ExamToken
	err := row.Scan(&t.Code, &t.AccountID, &t.Status, &t.Score, &t.CreatedAt, &t.IssuedVia, &t.CompletedAt)
	return t, err
}
