package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/handlers/userctx"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
)

type tokenResponse struct {
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	Score     *int64    `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	ExamURL   string    `json:"exam_url"`
}

// examHandoffURL builds the opaque link handed to the exam collaborator
func examHandoffURL(examAddr string, code string) string {
	return examAddr + "?token=" + url.QueryEscape(code)
}

func toTokenResponse(t models.ExamToken, examAddr string) tokenResponse {
	return tokenResponse{
		Code:      t.Code,
		Status:    t.Status,
		Score:     t.Score,
		CreatedAt: t.CreatedAt,
		ExamURL:   examHandoffURL(examAddr, t.Code),
	}
}

func handleIssueToken(ledger ledgerService, examAddr string, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.Account(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		token, err := ledger.IssueToken(r.Context(), account.ID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, toTokenResponse(token, examAddr), http.StatusCreated)

		case errors.Is(err, apperrors.ErrInsufficientCredit):
			render.ServiceError(w, "Not enough credit, top up first", http.StatusPaymentRequired)

		case errors.Is(err, apperrors.ErrConcurrentModification):
			render.ServiceError(w, "Balance changed while issuing, try again", http.StatusConflict)

		case errors.Is(err, apperrors.ErrCodeGenerationExhausted):
			l.Error("Code generation exhausted", "account_id", account.ID)
			render.ServiceError(w, "Could not issue a token right now, try again", http.StatusServiceUnavailable)

		default:
			l.Error("Failed to issue token", "error", err, "account_id", account.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTokens(ledger ledgerService, examAddr string, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.Account(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		tokens, err := ledger.ListTokens(r.Context(), account.ID)
		if err != nil {
			l.Error("Failed to list tokens", "error", err, "account_id", account.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		response := make([]tokenResponse, 0, len(tokens))
		for _, t := range tokens {
			response = append(response, toTokenResponse(t, examAddr))
		}

		render.JSON(w, response)
	})
}
