// Package confirm implements the two-step arm/confirm protocol used by the
// destructive bulk commands. A destructive request arms a pending action for
// its chat; the action runs only if the same chat confirms before the
// deadline, otherwise it expires and is discarded.
package confirm

import (
	"sync"
	"time"
)

// Action identifies what a pending confirmation will do.
type Action int

const (
	ActionNone Action = iota
	ActionDeleteUpcoming
	ActionDeleteHistory
)

func (a Action) String() string {
	switch a {
	case ActionDeleteUpcoming:
		return "delete_upcoming"
	case ActionDeleteHistory:
		return "delete_history"
	default:
		return "none"
	}
}

// Pending is one armed action awaiting confirmation.
type Pending struct {
	Action  Action
	ArmedAt time.Time
	timer   *time.Timer
}

// Manager tracks at most one pending action per chat. Safe for concurrent
// use; arming, confirming, and expiry race against each other and exactly
// one of them wins.
type Manager struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[int64]*Pending
	// onExpire, when set, is called outside the lock after a pending
	// action times out.
	onExpire func(chatID int64, a Action)
}

// New returns a Manager with the given confirmation window. A non-positive
// timeout defaults to 30 seconds.
func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		timeout: timeout,
		pending: make(map[int64]*Pending),
	}
}

// OnExpire registers a callback invoked when an armed action expires
// unconfirmed. Must be set before the manager is shared.
func (m *Manager) OnExpire(fn func(chatID int64, a Action)) {
	m.mu.Lock()
	m.onExpire = fn
	m.mu.Unlock()
}

// Timeout returns the confirmation window.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Begin arms action for chatID. It reports false if the chat already has a
// pending action, in which case the new request is rejected and the
// existing one stays armed.
func (m *Manager) Begin(chatID int64, action Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.pending[chatID]; busy {
		return false
	}
	p := &Pending{Action: action, ArmedAt: time.Now()}
	p.timer = time.AfterFunc(m.timeout, func() { m.expire(chatID, p) })
	m.pending[chatID] = p
	return true
}

// Resolve consumes the pending action for chatID, if any, and cancels its
// expiry timer. The caller performs the action. If nothing is pending (or
// it already expired) it returns ActionNone and false.
func (m *Manager) Resolve(chatID int64) (Action, bool) {
	m.mu.Lock()
	p, ok := m.pending[chatID]
	if ok {
		delete(m.pending, chatID)
		p.timer.Stop()
	}
	m.mu.Unlock()
	if !ok {
		return ActionNone, false
	}
	return p.Action, true
}

// peek reports the pending action for chatID without consuming it.
func (m *Manager) peek(chatID int64) (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[chatID]
	if !ok {
		return ActionNone, false
	}
	return p.Action, true
}

func (m *Manager) expire(chatID int64, p *Pending) {
	m.mu.Lock()
	cur, ok := m.pending[chatID]
	if ok && cur == p {
		delete(m.pending, chatID)
	} else {
		// Resolved (or re-armed) before the timer fired.
		ok = false
	}
	fn := m.onExpire
	m.mu.Unlock()
	if ok && fn != nil {
		fn(chatID, p.Action)
	}
}
