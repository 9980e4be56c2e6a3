package apperrors

import (
	"errors"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrInsufficientCredit      = errors.New("insufficient credit")
	ErrConcurrentModification  = errors.New("account balance modified concurrently")
	ErrCodeCollision           = errors.New("token code already exists")
	ErrCodeGenerationExhausted = errors.New("token code generation exhausted")

	ErrTokenNotFound         = errors.New("exam token not found")
	ErrTokenAlreadyCompleted = errors.New("exam token already completed")

	ErrSubscriptionClosed = errors.New("subscription closed")

	// Verification collaborator asked to wait before the next resend
	ErrRateLimited = errors.New("rate limited")

	ErrSessionNotFound = errors.New("session not found")
)
