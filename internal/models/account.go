package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Email        string
	PasswordHash string
	DisplayName  string
	School       string

	// Set by the external identity-verification collaborator
	Verified bool

	// Credits never go below zero, enforced both here and by the storage layer
	Credits int64

	// Append-only audit trail of every code issued to this account.
	// Redundant with the exam_tokens table on purpose.
	TokenCodes []string
}

// CreditEvent records a balance increase reported by the payment collaborator.
type CreditEvent struct {
	ID          uuid.UUID
	ProcessedAt time.Time
	AccountID   uuid.UUID
	Delta       int64
	Price       decimal.Decimal
	ProviderRef string
}
