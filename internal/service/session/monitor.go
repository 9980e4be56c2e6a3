package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInactivityWindow matches the dashboard's forced-logout policy
const DefaultInactivityWindow = 30 * time.Minute

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// Monitor is the process-wide inactivity watchdog. It keeps exactly one
// pending expiry timer per live session: every activity signal cancels the
// previous timer and schedules a fresh one, never an additional one.
type Monitor struct {
	mu     sync.Mutex
	timers map[uuid.UUID]timerEntry
	gen    uint64
	closed bool

	window   time.Duration
	onExpire func(sessionID uuid.UUID)
}

func NewMonitor(window time.Duration, onExpire func(sessionID uuid.UUID)) *Monitor {
	if window == 0 {
		window = DefaultInactivityWindow
	}

	return &Monitor{
		timers:   make(map[uuid.UUID]timerEntry),
		window:   window,
		onExpire: onExpire,
	}
}

// RecordActivity cancels the session's pending expiry timer and schedules a
// new one counted from now. Cancel and reschedule happen under one lock so a
// stale timer can never fire after the one that superseded it was armed.
func (m *Monitor) RecordActivity(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if entry, ok := m.timers[sessionID]; ok {
		entry.timer.Stop()
	}

	m.gen++
	gen := m.gen
	m.timers[sessionID] = timerEntry{
		timer: time.AfterFunc(m.window, func() { m.expire(sessionID, gen) }),
		gen:   gen,
	}
}

// expire runs on the timer goroutine. The generation check drops firings of
// timers that lost the Stop race with a reschedule.
func (m *Monitor) expire(sessionID uuid.UUID, gen uint64) {
	m.mu.Lock()
	entry, ok := m.timers[sessionID]
	if !ok || entry.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.timers, sessionID)
	m.mu.Unlock()

	m.onExpire(sessionID)
}

// Forget cancels the pending timer on explicit logout so it can not fire
// against a dead session
func (m *Monitor) Forget(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.timers[sessionID]; ok {
		entry.timer.Stop()
		delete(m.timers, sessionID)
	}
}

// Pending reports whether the session currently has an expiry timer armed
func (m *Monitor) Pending(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.timers[sessionID]
	return ok
}

// Close cancels every pending timer on process teardown
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, entry := range m.timers {
		entry.timer.Stop()
		delete(m.timers, id)
	}
}
