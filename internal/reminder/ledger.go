package reminder

import (
	"fmt"
	"sync"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
)

// DedupKey returns the identity of an event for reminder dedup purposes.
// The key binds the stable event ID to the start minute and the summary, so
// rescheduling or renaming an event re-arms its reminders while unrelated
// events can never collide.
func DedupKey(ev calendar.Event) string {
	return fmt.Sprintf("%s|%s|%s", ev.ID, ev.Start.Format("0601021504"), ev.Summary)
}

// Ledger records which reminders have already fired, one keyspace per
// threshold. Entries remember the event start so stale keys can be pruned
// once the event is comfortably in the past. Safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	grace time.Duration
	fired map[Threshold]map[string]time.Time
}

// NewLedger returns an empty ledger. Entries become prunable once the
// recorded event start is more than grace in the past.
func NewLedger(grace time.Duration) *Ledger {
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	return &Ledger{
		grace: grace,
		fired: map[Threshold]map[string]time.Time{
			ThresholdThreeHour: make(map[string]time.Time),
			ThresholdOneDay:    make(map[string]time.Time),
			ThresholdOneWeek:   make(map[string]time.Time),
		},
	}
}

// ShouldFire reports whether key has not yet fired for th.
func (l *Ledger) ShouldFire(th Threshold, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.fired[th]
	if !ok {
		return false
	}
	_, seen := set[key]
	return !seen
}

// MarkFired records that key has fired for th. start is the event start the
// entry belongs to; it drives retention.
func (l *Ledger) MarkFired(th Threshold, key string, start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.fired[th]; ok {
		set[key] = start
	}
}

// Prune drops entries whose event start is more than the grace period
// before now and returns how many were removed.
func (l *Ledger) Prune(now time.Time) int {
	cutoff := now.Add(-l.grace)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for _, set := range l.fired {
		for key, start := range set {
			if start.Before(cutoff) {
				delete(set, key)
				removed++
			}
		}
	}
	return removed
}

// Len returns the total number of recorded entries across all thresholds.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, set := range l.fired {
		n += len(set)
	}
	return n
}
