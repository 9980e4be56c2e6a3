package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
)

const (
	CodeRetryAfter = "retry-after"
	CodeUnknown    = "unknown"
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

// Client talks to the external identity-verification collaborator.
// Delivery is best effort and idempotent on the collaborator's side; the
// collaborator rate-limits resends and the "please wait" answer is a
// recoverable condition, not a failure of this service.
type Client struct {
	VerifierAddr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	return &Client{
		VerifierAddr: addr,
		client:       &http.Client{},
		logger:       l,
	}
}

// Resend asks the collaborator to send the verification mail again.
// Returns an apperrors.ErrRateLimited-wrapped *Error with the wait duration
// when the collaborator throttles the account.
func (c *Client) Resend(ctx context.Context, accountID uuid.UUID, email string) error {
	body, err := json.Marshal(map[string]string{
		"account_id": accountID.String(),
		"email":      email,
	})
	if err != nil {
		return fmt.Errorf("failed to encode resend request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.VerifierAddr+"/api/verifications/resend", bytes.NewReader(body))
	if err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		c.logger.Debug("Verification resend accepted", "account_id", accountID)
		return nil

	case http.StatusTooManyRequests:
		return c.processTooManyRequests(resp)

	default:
		c.logger.Warn("Verification resend failed", "status_code", resp.StatusCode, "account_id", accountID)
		return NewError(CodeUnknown, 0, fmt.Errorf("unknown status code %d", resp.StatusCode))
	}
}

func (c *Client) processTooManyRequests(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default if the collaborator did not say
	}

	c.logger.Info("Verification resend throttled", "retry_after", retryAfter)
	return &Error{
		Code:       CodeRetryAfter,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        apperrors.ErrRateLimited,
	}
}
