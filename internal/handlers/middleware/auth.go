package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/handlers/userctx"
	"github.com/ruangsim/examledger/internal/models"
	"github.com/ruangsim/examledger/internal/service/session"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.Account, *session.Session, error)
}

type activityRecorder interface {
	RecordActivity(sessionID uuid.UUID)
}

// AuthMiddleware resolves the bearer token to an account and session and
// counts the request as user activity, resetting the inactivity timer.
func AuthMiddleware(as authService, recorder activityRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, sess, err := as.Auth(r.Context(), r)
			if err != nil {
				message := "Unauthorized"
				if strings.Contains(err.Error(), "inactivity") {
					message = "Session ended due to inactivity, please log in again"
				}
				render.ServiceError(w, message, http.StatusUnauthorized)
				return
			}

			recorder.RecordActivity(sess.ID)

			ctx := userctx.New(r.Context(), account, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifiedOnly lets only sessions in the verified state reach the ledger
// and live view endpoints
func VerifiedOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := userctx.Session(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		if !sess.CanOperate() {
			render.ServiceError(w, "Verify your email before using the dashboard", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
