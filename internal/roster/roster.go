// Package roster tracks who receives reminders and who administers the
// bot. State lives in memory for fast snapshots and is written through to
// the configured store on every mutation.
package roster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/storage"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Roster is safe for concurrent use.
type Roster struct {
	mu         sync.Mutex
	log        logx.Logger
	store      storage.Store // may be nil
	recipients map[int64]struct{}
	admins     []storage.Admin
}

func New(store storage.Store, log logx.Logger) *Roster {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Roster{
		log:        log.With(logx.String("component", "roster")),
		store:      store,
		recipients: make(map[int64]struct{}),
	}
}

// Load replaces in-memory state with what the store has. A nil store loads
// nothing and is not an error.
func (r *Roster) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	st, err := r.store.LoadRoster(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.recipients = make(map[int64]struct{}, len(st.Recipients))
	for _, id := range st.Recipients {
		r.recipients[id] = struct{}{}
	}
	r.admins = append([]storage.Admin(nil), st.Admins...)
	r.mu.Unlock()
	r.log.Info("roster loaded",
		logx.Int("recipients", len(st.Recipients)),
		logx.Int("admins", len(st.Admins)))
	return nil
}

// Snapshot returns the current recipients in stable order. The returned
// slice is the caller's to keep.
func (r *Roster) Snapshot() []int64 {
	r.mu.Lock()
	out := make([]int64, 0, len(r.recipients))
	for id := range r.recipients {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AddRecipient subscribes chatID. It reports whether the chat was newly
// added.
func (r *Roster) AddRecipient(ctx context.Context, chatID int64) bool {
	r.mu.Lock()
	if _, ok := r.recipients[chatID]; ok {
		r.mu.Unlock()
		return false
	}
	r.recipients[chatID] = struct{}{}
	st := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, st)
	return true
}

// Remove unsubscribes chatID. It satisfies the dispatcher's pruning hook,
// so it must never block on the caller's context.
func (r *Roster) Remove(chatID int64) bool {
	r.mu.Lock()
	if _, ok := r.recipients[chatID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.recipients, chatID)
	st := r.snapshotLocked()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.persist(ctx, st)
	return true
}

// Has reports whether chatID is subscribed.
func (r *Roster) Has(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.recipients[chatID]
	return ok
}

// Admins returns the admin entries in registration order.
func (r *Roster) Admins() []storage.Admin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.Admin(nil), r.admins...)
}

// AdminChatIDs returns the admin chat IDs in registration order.
func (r *Roster) AdminChatIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.admins))
	for _, a := range r.admins {
		out = append(out, a.ChatID)
	}
	return out
}

func (r *Roster) IsAdmin(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.ChatID == chatID {
			return true
		}
	}
	return false
}

// AddAdmin appends a named admin if the chat is not already registered.
func (r *Roster) AddAdmin(ctx context.Context, name string, chatID int64) bool {
	r.mu.Lock()
	for _, a := range r.admins {
		if a.ChatID == chatID {
			r.mu.Unlock()
			return false
		}
	}
	r.admins = append(r.admins, storage.Admin{Name: name, ChatID: chatID})
	st := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, st)
	return true
}

// RemoveAdminAt drops the admin at the given zero-based position and
// returns the removed entry.
func (r *Roster) RemoveAdminAt(ctx context.Context, idx int) (storage.Admin, bool) {
	r.mu.Lock()
	if idx < 0 || idx >= len(r.admins) {
		r.mu.Unlock()
		return storage.Admin{}, false
	}
	removed := r.admins[idx]
	r.admins = append(r.admins[:idx], r.admins[idx+1:]...)
	st := r.snapshotLocked()
	r.mu.Unlock()
	r.persist(ctx, st)
	return removed, true
}

// Flush writes current state to the store. Called on shutdown.
func (r *Roster) Flush(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	st := r.snapshotLocked()
	r.mu.Unlock()
	return r.store.SaveRoster(ctx, st)
}

func (r *Roster) snapshotLocked() storage.Roster {
	st := storage.Roster{
		Admins: append([]storage.Admin(nil), r.admins...),
	}
	st.Recipients = make([]int64, 0, len(r.recipients))
	for id := range r.recipients {
		st.Recipients = append(st.Recipients, id)
	}
	sort.Slice(st.Recipients, func(i, j int) bool { return st.Recipients[i] < st.Recipients[j] })
	return st
}

func (r *Roster) persist(ctx context.Context, st storage.Roster) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRoster(ctx, st); err != nil {
		r.log.Warn("roster save failed", logx.Err(err))
	}
}
