package reminder

import (
	"testing"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
)

func TestDedupKeyRearmsOnEdit(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	base := calendar.Event{ID: "ev1", Start: start, Summary: "지부 운영위원회"}

	moved := base
	moved.Start = start.Add(30 * time.Minute)
	renamed := base
	renamed.Summary = "지부 확대운영위원회"
	other := calendar.Event{ID: "ev2", Start: start, Summary: "지부 운영위원회"}

	k := DedupKey(base)
	if DedupKey(moved) == k {
		t.Fatal("rescheduled event kept the same dedup key")
	}
	if DedupKey(renamed) == k {
		t.Fatal("renamed event kept the same dedup key")
	}
	if DedupKey(other) == k {
		t.Fatal("distinct events collided on dedup key")
	}
	if DedupKey(base) != k {
		t.Fatal("dedup key is not stable for an unchanged event")
	}
}

func TestLedgerFireOncePerThreshold(t *testing.T) {
	t.Parallel()
	l := NewLedger(0)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	key := "ev1|2604010900|모임"

	if !l.ShouldFire(ThresholdThreeHour, key) {
		t.Fatal("fresh key should fire")
	}
	l.MarkFired(ThresholdThreeHour, key, start)
	if l.ShouldFire(ThresholdThreeHour, key) {
		t.Fatal("key fired twice for the same threshold")
	}
	// Other thresholds keep their own keyspace.
	if !l.ShouldFire(ThresholdOneDay, key) {
		t.Fatal("one threshold firing must not consume the others")
	}
}

func TestLedgerPruneGrace(t *testing.T) {
	t.Parallel()
	l := NewLedger(24 * time.Hour)
	now := time.Date(2026, 4, 10, 4, 0, 0, 0, time.UTC)

	l.MarkFired(ThresholdThreeHour, "old", now.Add(-25*time.Hour))
	l.MarkFired(ThresholdOneDay, "old", now.Add(-25*time.Hour))
	l.MarkFired(ThresholdThreeHour, "recent", now.Add(-23*time.Hour))
	l.MarkFired(ThresholdOneWeek, "future", now.Add(48*time.Hour))

	if removed := l.Prune(now); removed != 2 {
		t.Fatalf("Prune removed %d entries, want 2", removed)
	}
	if l.Len() != 2 {
		t.Fatalf("Len = %d after prune, want 2", l.Len())
	}
	if l.ShouldFire(ThresholdThreeHour, "recent") {
		t.Fatal("entry inside the grace window was pruned")
	}
	if !l.ShouldFire(ThresholdThreeHour, "old") {
		t.Fatal("pruned entry should be able to fire again")
	}
}
