package models

// Projection is an observer's read-only mirror of one account and its
// tokens, ordered by creation time descending. Each projection is an
// internally consistent snapshot of the latest known state of both feeds,
// not a transactionally consistent view across them.
type Projection struct {
	Account Account
	Tokens  []ExamToken
}
