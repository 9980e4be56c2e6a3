package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TokenStatusActive    = "active"
	TokenStatusCompleted = "completed"
)

const (
	IssuedViaDashboard = "DASHBOARD_GENERATE"
)

// ExamToken is a single-use shareable code granting one exam attempt.
// Status is terminal once completed; Score is set exactly once, together
// with the completed status.
type ExamToken struct {
	Code        string
	AccountID   uuid.UUID
	Status      string
	Score       *int64
	CreatedAt   time.Time
	IssuedVia   string
	CompletedAt *time.Time
}
