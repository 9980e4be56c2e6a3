package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruangsim/examledger/internal/apperrors"
	"github.com/ruangsim/examledger/internal/logger"
)

// State of the access gate for one session
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticatedUnverified
	StateAuthenticatedVerified
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticatedUnverified:
		return "authenticated_unverified"
	case StateAuthenticatedVerified:
		return "authenticated_verified"
	default:
		return "unknown"
	}
}

// Event moving the gate between states
type Event int

const (
	// Successful credential check; verified flag decides the target state
	EventLogin Event = iota

	// External verification confirmed
	EventVerified

	// Explicit logout or inactivity expiry
	EventLogout
)

// Transition is the gate's closed transition function
func Transition(current State, event Event, verified bool) State {
	switch event {
	case EventLogin:
		if verified {
			return StateAuthenticatedVerified
		}
		return StateAuthenticatedUnverified

	case EventVerified:
		if current == StateAuthenticatedUnverified {
			return StateAuthenticatedVerified
		}
		return current

	case EventLogout:
		return StateUnauthenticated

	default:
		return current
	}
}

// End reasons kept for the user-visible message on the next request
const (
	ReasonLogout     = "logout"
	ReasonInactivity = "inactivity"
)

// Session is the ephemeral authenticated context for one user. Everything
// mounted for the session (live view subscriptions included) derives from
// its context and is torn down when the session ends.
type Session struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	State        State
	LastActivity time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the session ends, for any reason
func (s *Session) Context() context.Context {
	return s.ctx
}

// CanOperate reports whether the session may invoke the ledger or hold a
// live view subscription
func (s *Session) CanOperate() bool {
	return s.State == StateAuthenticatedVerified
}

type endedSession struct {
	reason string
	at     time.Time
}

// Gate owns the live sessions and decides, from session and verification
// state, whether the ledger and the synchronizer may be used.
type Gate struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ended    map[uuid.UUID]endedSession
	window   time.Duration

	monitor *Monitor
	logger  logger.Logger
}

func NewGate(inactivityWindow time.Duration, l logger.Logger) *Gate {
	g := &Gate{
		sessions: make(map[uuid.UUID]*Session),
		ended:    make(map[uuid.UUID]endedSession),
		window:   inactivityWindow,
		logger:   l,
	}
	g.monitor = NewMonitor(inactivityWindow, g.expire)

	return g
}

// Begin creates a live session after a successful credential check and arms
// its inactivity timer
func (g *Gate) Begin(accountID uuid.UUID, verified bool) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		ID:           uuid.New(),
		AccountID:    accountID,
		State:        Transition(StateUnauthenticated, EventLogin, verified),
		LastActivity: time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}

	g.mu.Lock()
	g.sessions[sess.ID] = sess
	g.mu.Unlock()

	g.monitor.RecordActivity(sess.ID)
	g.logger.Info("Session started", "session_id", sess.ID, "account_id", accountID, "state", sess.State.String())

	return sess
}

// Get returns the live session or apperrors.ErrSessionNotFound
func (g *Gate) Get(sessionID uuid.UUID) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	return sess, nil
}

// RecordActivity resets the session's inactivity timer
func (g *Gate) RecordActivity(sessionID uuid.UUID) {
	g.mu.Lock()
	if sess, ok := g.sessions[sessionID]; ok {
		sess.LastActivity = time.Now()
	}
	g.mu.Unlock()

	g.monitor.RecordActivity(sessionID)
}

// Promote moves every session of the account to the verified state after
// the external confirmation
func (g *Gate) Promote(accountID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, sess := range g.sessions {
		if sess.AccountID == accountID {
			sess.State = Transition(sess.State, EventVerified, true)
		}
	}
}

// End tears the session down: state back to Unauthenticated, context
// cancelled (which detaches any subscription), timer cancelled.
func (g *Gate) End(sessionID uuid.UUID, reason string) {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	if ok {
		sess.State = Transition(sess.State, EventLogout, false)
		delete(g.sessions, sessionID)
		// Only the inactivity reason is ever read back; clients that log
		// out discard their tokens and never ask.
		if reason == ReasonInactivity {
			g.pruneEndedLocked()
			g.ended[sessionID] = endedSession{reason: reason, at: time.Now()}
		}
	}
	g.mu.Unlock()

	g.monitor.Forget(sessionID)

	if ok {
		sess.cancel()
		g.logger.Info("Session ended", "session_id", sessionID, "reason", reason)
	}
}

// EndedReason returns why a no-longer-live session ended, once. The caller
// uses it to tell the user the session expired for inactivity rather than
// showing a bare authentication error.
func (g *Gate) EndedReason(sessionID uuid.UUID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.ended[sessionID]
	if ok {
		delete(g.ended, sessionID)
	}

	return entry.reason, ok
}

// Entries nobody asked about within another window are dropped
func (g *Gate) pruneEndedLocked() {
	cutoff := time.Now().Add(-g.window)
	for id, entry := range g.ended {
		if entry.at.Before(cutoff) {
			delete(g.ended, id)
		}
	}
}

// Close ends every live session and stops the watchdog on teardown
func (g *Gate) Close() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	g.sessions = make(map[uuid.UUID]*Session)
	g.mu.Unlock()

	for _, sess := range sessions {
		sess.cancel()
	}
	g.monitor.Close()
}

func (g *Gate) expire(sessionID uuid.UUID) {
	g.End(sessionID, ReasonInactivity)
}
