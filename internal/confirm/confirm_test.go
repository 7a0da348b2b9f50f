package confirm

import (
	"testing"
	"time"
)

func TestBeginResolve(t *testing.T) {
	t.Parallel()
	m := New(time.Minute)

	if !m.Begin(10, ActionDeleteUpcoming) {
		t.Fatal("first Begin rejected")
	}
	if a, ok := m.peek(10); !ok || a != ActionDeleteUpcoming {
		t.Fatalf("peek = %v, %v", a, ok)
	}
	a, ok := m.Resolve(10)
	if !ok || a != ActionDeleteUpcoming {
		t.Fatalf("Resolve = %v, %v", a, ok)
	}
	// Consumed: a second confirm finds nothing.
	if _, ok := m.Resolve(10); ok {
		t.Fatal("Resolve succeeded twice")
	}
}

func TestBeginRejectsWhileBusy(t *testing.T) {
	t.Parallel()
	m := New(time.Minute)

	if !m.Begin(10, ActionDeleteUpcoming) {
		t.Fatal("first Begin rejected")
	}
	if m.Begin(10, ActionDeleteHistory) {
		t.Fatal("second Begin accepted while one is pending")
	}
	// The original action stays armed.
	if a, _ := m.peek(10); a != ActionDeleteUpcoming {
		t.Fatalf("pending action = %v, want ActionDeleteUpcoming", a)
	}
	// Other chats are independent.
	if !m.Begin(11, ActionDeleteHistory) {
		t.Fatal("Begin for another chat rejected")
	}
}

func TestExpiryFiresCallbackOnce(t *testing.T) {
	t.Parallel()
	m := New(20 * time.Millisecond)
	expired := make(chan Action, 2)
	m.OnExpire(func(chatID int64, a Action) { expired <- a })

	if !m.Begin(10, ActionDeleteHistory) {
		t.Fatal("Begin rejected")
	}
	select {
	case a := <-expired:
		if a != ActionDeleteHistory {
			t.Fatalf("expired action = %v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
	if _, ok := m.Resolve(10); ok {
		t.Fatal("expired action was still resolvable")
	}
	// The slot is free again.
	if !m.Begin(10, ActionDeleteUpcoming) {
		t.Fatal("Begin rejected after expiry")
	}
}

func TestResolveBeatsExpiry(t *testing.T) {
	t.Parallel()
	m := New(20 * time.Millisecond)
	expired := make(chan Action, 1)
	m.OnExpire(func(chatID int64, a Action) { expired <- a })

	if !m.Begin(10, ActionDeleteUpcoming) {
		t.Fatal("Begin rejected")
	}
	if _, ok := m.Resolve(10); !ok {
		t.Fatal("Resolve failed")
	}
	select {
	case <-expired:
		t.Fatal("expiry fired for a resolved action")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRearmAfterResolveKeepsNewAction(t *testing.T) {
	t.Parallel()
	m := New(30 * time.Millisecond)
	expired := make(chan Action, 2)
	m.OnExpire(func(chatID int64, a Action) { expired <- a })

	if !m.Begin(10, ActionDeleteUpcoming) {
		t.Fatal("Begin rejected")
	}
	m.Resolve(10)
	if !m.Begin(10, ActionDeleteHistory) {
		t.Fatal("re-arm rejected")
	}

	// Only the second action may expire, and only once.
	select {
	case a := <-expired:
		if a != ActionDeleteHistory {
			t.Fatalf("expired action = %v, want ActionDeleteHistory", a)
		}
	case <-time.After(time.Second):
		t.Fatal("second action never expired")
	}
	select {
	case a := <-expired:
		t.Fatalf("unexpected extra expiry: %v", a)
	case <-time.After(100 * time.Millisecond):
	}
}
