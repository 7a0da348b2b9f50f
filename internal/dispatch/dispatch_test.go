package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

type fakeAdapter struct {
	// errs maps a chat to the sequence of errors its sends return. Once the
	// sequence runs out, sends succeed.
	errs  map[int64][]error
	sends map[int64]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{errs: map[int64][]error{}, sends: map[int64]int{}}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) SendDocument(ctx context.Context, to transport.ChatTarget, filename string, data []byte, caption string) error {
	return nil
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.sends[to.ChatID]++
	if q := f.errs[to.ChatID]; len(q) > 0 {
		err := q[0]
		f.errs[to.ChatID] = q[1:]
		return err
	}
	return nil
}

type fakePruner struct {
	removed []int64
}

func (f *fakePruner) Remove(chatID int64) bool {
	f.removed = append(f.removed, chatID)
	return true
}

func testConfig() Config {
	return Config{RatePerSec: 10000, Burst: 100, RetryMax: 1, RetryDelay: time.Millisecond}
}

func TestBroadcastPrunesPermanentFailures(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.errs[2] = []error{&transport.PermanentError{Err: errors.New("blocked")}}
	pr := &fakePruner{}
	d := New(testConfig(), ad, logx.Nop())

	rep := d.Broadcast(context.Background(), []int64{1, 2, 3}, "hello", pr)
	if rep.Sent != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v, want Sent=2 Failed=0", rep)
	}
	if len(rep.Removed) != 1 || rep.Removed[0] != 2 {
		t.Fatalf("Removed = %v, want [2]", rep.Removed)
	}
	if len(pr.removed) != 1 || pr.removed[0] != 2 {
		t.Fatalf("pruner got %v, want [2]", pr.removed)
	}
	// Permanent errors are never retried.
	if ad.sends[2] != 1 {
		t.Fatalf("chat 2 saw %d sends, want 1", ad.sends[2])
	}
}

func TestBroadcastRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.errs[1] = []error{errors.New("timeout")}
	d := New(testConfig(), ad, logx.Nop())

	rep := d.Broadcast(context.Background(), []int64{1}, "hello", nil)
	if rep.Sent != 1 || rep.Failed != 0 || len(rep.Removed) != 0 {
		t.Fatalf("report = %+v, want Sent=1", rep)
	}
	if ad.sends[1] != 2 {
		t.Fatalf("chat 1 saw %d sends, want 2", ad.sends[1])
	}
}

func TestBroadcastTransientExhaustionCountsFailed(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.errs[1] = []error{errors.New("timeout"), errors.New("timeout")}
	d := New(testConfig(), ad, logx.Nop())

	rep := d.Broadcast(context.Background(), []int64{1, 2}, "hello", nil)
	if rep.Sent != 1 || rep.Failed != 1 {
		t.Fatalf("report = %+v, want Sent=1 Failed=1", rep)
	}
}

func TestBroadcastOneFailureDoesNotAbortRest(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.errs[1] = []error{&transport.PermanentError{Err: errors.New("gone")}}
	d := New(testConfig(), ad, logx.Nop())

	rep := d.Broadcast(context.Background(), []int64{1, 2, 3, 4}, "hello", nil)
	if rep.Sent != 3 {
		t.Fatalf("Sent = %d, want 3", rep.Sent)
	}
	for _, id := range []int64{2, 3, 4} {
		if ad.sends[id] != 1 {
			t.Fatalf("chat %d saw %d sends, want 1", id, ad.sends[id])
		}
	}
}

func TestBroadcastCancelledContext(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	d := New(testConfig(), ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := d.Broadcast(ctx, []int64{1, 2, 3}, "hello", nil)
	if rep.Sent != 0 {
		t.Fatalf("Sent = %d after cancel, want 0", rep.Sent)
	}
	if rep.Failed != 3 {
		t.Fatalf("Failed = %d after cancel, want 3", rep.Failed)
	}
}
