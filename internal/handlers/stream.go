package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ruangsim/examledger/internal/handlers/render"
	"github.com/ruangsim/examledger/internal/handlers/userctx"
	"github.com/ruangsim/examledger/internal/logger"
	"github.com/ruangsim/examledger/internal/models"
)

type projectionResponse struct {
	DisplayName string          `json:"display_name"`
	School      string          `json:"school"`
	Verified    bool            `json:"verified"`
	Credits     int64           `json:"credits"`
	Tokens      []tokenResponse `json:"tokens"`
}

func toProjectionResponse(p models.Projection, examAddr string) projectionResponse {
	tokens := make([]tokenResponse, 0, len(p.Tokens))
	for _, t := range p.Tokens {
		tokens = append(tokens, toTokenResponse(t, examAddr))
	}

	return projectionResponse{
		DisplayName: p.Account.DisplayName,
		School:      p.Account.School,
		Verified:    p.Account.Verified,
		Credits:     p.Account.Credits,
		Tokens:      tokens,
	}
}

// handleStream serves the live dashboard feed over SSE: one event per
// projection emission. The stream ends when the client disconnects or the
// session is torn down, whichever happens first.
func handleStream(views viewService, examAddr string, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.Account(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		sess, ok := userctx.Session(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			render.ServiceError(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		// The subscription lives until either the request or the session ends
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			select {
			case <-sess.Context().Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		sub, err := views.Subscribe(ctx, account.ID)
		if err != nil {
			l.Error("Failed to subscribe", "error", err, "account_id", account.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for projection := range sub.Updates() {
			data, err := json.Marshal(toProjectionResponse(projection, examAddr))
			if err != nil {
				l.Error("Failed to encode projection", "error", err)
				return
			}

			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		if err := sub.Err(); err != nil {
			l.Warn("Subscription closed with error", "error", err, "account_id", account.ID)
			_, _ = fmt.Fprintf(w, "event: closed\ndata: {\"reason\":%q,\"at\":%q}\n\n", "subscription closed, re-subscribe", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	})
}
