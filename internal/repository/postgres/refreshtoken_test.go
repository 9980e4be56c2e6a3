package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/testutil"
)

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	saveToken := func(t *testing.T, tx pgx.Tx, tokenString string) models.RefreshToken {
		t.Helper()

		accounts := AccountRepo{DB: tx}
		account := mustCreateAccount(t, &accounts, tokenString+"@example.com")

		r := RefreshTokenRepo{DB: tx}
		token := models.RefreshToken{
			ID:        uuid.New(),
			AccountID: account.ID,
			Token:     tokenString,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, r.Save(t.Context(), token))
		return token
	}

	t.Run("save and get ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := RefreshTokenRepo{DB: tx}
			saved := saveToken(t, tx, "refresh-save")

			got, err := r.Get(t.Context(), "refresh-save")

			require.NoError(t, err)
			assert.Equal(t, saved.ID, got.ID)
			assert.Equal(t, saved.AccountID, got.AccountID)
			assert.Nil(t, got.UsedAt, "fresh token must not be used")
		})
	})

	t.Run("get not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := RefreshTokenRepo{DB: tx}

			_, err := r.Get(t.Context(), "never-saved")

			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("mark used ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := RefreshTokenRepo{DB: tx}
			saveToken(t, tx, "refresh-use")

			usedAt, err := r.MarkUsed(t.Context(), "refresh-use")

			require.NoError(t, err, "first use must not be mistaken for a repeat")
			assert.WithinDuration(t, time.Now(), usedAt, time.Second)
			assert.True(t, usedAt.Equal(usedAt.Truncate(time.Microsecond)),
				"used_at must be written at the precision postgres stores")
		})
	})

	t.Run("mark used twice", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := RefreshTokenRepo{DB: tx}
			saveToken(t, tx, "refresh-twice")

			first, err := r.MarkUsed(t.Context(), "refresh-twice")
			require.NoError(t, err)

			second, err := r.MarkUsed(t.Context(), "refresh-twice")

			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
			assert.Equal(t, first, second, "used_at must not be rewritten")
		})
	})

	t.Run("mark used not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := RefreshTokenRepo{DB: tx}

			_, err := r.MarkUsed(t.Context(), "never-saved")

			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})
}
