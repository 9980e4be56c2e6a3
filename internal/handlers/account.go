package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/handlers/userctx"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/service/verification"
)

func handleMe() http.Handler {
	type response struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		School      string `json:"school"`
		Verified    bool   `json:"verified"`
		Credits     int64  `json:"credits"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.Account(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			ID:          account.ID.String(),
			Email:       account.Email,
			DisplayName: account.DisplayName,
			School:      account.School,
			Verified:    account.Verified,
			Credits:     account.Credits,
		})
	})
}

func handleResendVerification(verifier verifierClient, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.Account(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		if account.Verified {
			render.ServiceError(w, "Account is already verified", http.StatusConflict)
			return
		}

		err := verifier.Resend(r.Context(), account.ID, account.Email)

		var verr *verification.Error
		switch {
		case err == nil:
			render.JSON(w, response{Message: "Verification email sent, check your spam folder too"})

		case errors.Is(err, apperrors.ErrRateLimited):
			if errors.As(err, &verr) {
				w.Header().Set("Retry-After", strconv.Itoa(int(verr.RetryAfter.Seconds())))
			}
			render.ServiceError(w, "Please wait before requesting another email", http.StatusTooManyRequests)

		default:
			l.Error("Failed to resend verification", "error", err, "account_id", account.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
