package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/logger"
)

// Partner endpoints: callbacks from the external collaborators.
// Results come from the exam application, top-ups from the payment
// provider, verification confirmations from the identity verifier.

func handleExamResult(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Code  string `json:"code" validate:"required"`
		Score int64  `json:"score" validate:"min=0"`
	}
	type response struct {
		Code   string `json:"code"`
		Status string `json:"status"`
		Score  *int64 `json:"score"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := ledger.CompleteToken(r.Context(), data.Code, data.Score)

		switch {
		case err == nil:
			render.JSON(w, response{Code: token.Code, Status: token.Status, Score: token.Score})

		case errors.Is(err, apperrors.ErrTokenNotFound):
			render.ServiceError(w, "Unknown token code", http.StatusNotFound)

		case errors.Is(err, apperrors.ErrTokenAlreadyCompleted):
			// Repeated report: reject without touching the stored score
			render.ServiceError(w, "Token already has a score", http.StatusConflict)

		default:
			l.Error("Failed to apply exam result", "error", err, "code", data.Code)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTopUp(ledger ledgerService, l logger.Logger) http.Handler {
	type request struct {
		AccountID   string `json:"account_id" validate:"required,uuid"`
		Credits     int64  `json:"credits" validate:"required,min=1"`
		Price       string `json:"price"`
		ProviderRef string `json:"provider_ref"`
	}
	type response struct {
		AccountID string `json:"account_id"`
		Credits   int64  `json:"credits"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		accountID, err := uuid.Parse(data.AccountID)
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		price, err := parsePrice(data.Price)
		if err != nil {
			render.ServiceError(w, "Invalid price", http.StatusBadRequest)
			return
		}

		account, err := ledger.TopUp(r.Context(), accountID, data.Credits, price, data.ProviderRef)

		switch {
		case err == nil:
			render.JSON(w, response{AccountID: account.ID.String(), Credits: account.Credits})

		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Unknown account", http.StatusNotFound)

		default:
			l.Error("Failed to apply top-up", "error", err, "account_id", data.AccountID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleVerified(authService authService, l logger.Logger) http.Handler {
	type request struct {
		AccountID string `json:"account_id" validate:"required,uuid"`
	}
	type response struct {
		AccountID string `json:"account_id"`
		Verified  bool   `json:"verified"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		accountID, err := uuid.Parse(data.AccountID)
		if err != nil {
			render.ServiceError(w, "Invalid account id", http.StatusBadRequest)
			return
		}

		account, err := authService.ConfirmVerified(r.Context(), accountID)

		switch {
		case err == nil:
			render.JSON(w, response{AccountID: account.ID.String(), Verified: account.Verified})

		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Unknown account", http.StatusNotFound)

		default:
			l.Error("Failed to confirm verification", "error", err, "account_id", data.AccountID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
