package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/dispatch"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Lister is the slice of the calendar client the scheduler needs.
type Lister interface {
	ListUpcoming(ctx context.Context, limit int) ([]calendar.Event, error)
}

// Broadcaster delivers one reminder text to a set of chats.
type Broadcaster interface {
	Broadcast(ctx context.Context, targets []int64, text string, prune dispatch.Pruner) dispatch.Report
}

// RecipientSource yields the current subscriber snapshot for a tick.
type RecipientSource interface {
	Snapshot() []int64
}

// RenderFunc formats the outgoing reminder for one event and threshold.
type RenderFunc func(ev calendar.Event, th Threshold, now time.Time) string

// Config tunes the polling scheduler.
type Config struct {
	Enabled       bool
	Interval      time.Duration
	UpcomingLimit int
	// PruneSpec is a cron expression for the ledger retention sweep.
	// Empty disables the sweep.
	PruneSpec string
	Grace     time.Duration
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.UpcomingLimit <= 0 {
		c.UpcomingLimit = 300
	}
	if c.Grace <= 0 {
		c.Grace = 24 * time.Hour
	}
}

// Service is the reminder scheduler. One long-lived Run loop scans upcoming
// events each tick and fires at most one reminder per (event, threshold).
type Service struct {
	cfg        Config
	cal        Lister
	disp       Broadcaster
	recipients RecipientSource
	prune      dispatch.Pruner
	ledger     *Ledger
	render     RenderFunc
	log        logx.Logger
	now        func() time.Time
}

func New(cfg Config, cal Lister, disp Broadcaster, recipients RecipientSource, prune dispatch.Pruner, render RenderFunc, log logx.Logger) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	if render == nil {
		render = defaultRender
	}
	return &Service{
		cfg:        cfg,
		cal:        cal,
		disp:       disp,
		recipients: recipients,
		prune:      prune,
		ledger:     NewLedger(cfg.Grace),
		render:     render,
		log:        log.With(logx.String("component", "reminder")),
		now:        time.Now,
	}
}

func defaultRender(ev calendar.Event, th Threshold, now time.Time) string {
	return fmt.Sprintf("[%s] %s (%s)", th, ev.Summary, ev.Start.Format("2006-01-02 15:04"))
}

// Run drives the polling loop until ctx is cancelled. One failed tick is
// logged and swallowed; the loop carries on with the next tick.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("reminder scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	if s.cfg.PruneSpec != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.PruneSpec, func() {
			n := s.ledger.Prune(s.now())
			s.log.Info("ledger pruned", logx.Int("removed", n))
		}); err != nil {
			return fmt.Errorf("reminder: bad prune spec %q: %w", s.cfg.PruneSpec, err)
		}
		c.Start()
		defer c.Stop()
	}

	s.log.Info("reminder scheduler started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Int("upcoming_limit", s.cfg.UpcomingLimit))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		s.tickSafe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tickSafe runs one tick and contains any failure, including panics, so a
// bad tick can never take the loop down.
func (s *Service) tickSafe(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", logx.Any("panic", r))
		}
	}()
	if err := s.tick(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.log.Warn("tick failed", logx.Err(err))
	}
}

func (s *Service) tick(ctx context.Context, now time.Time) error {
	targets := s.recipients.Snapshot()
	if len(targets) == 0 {
		s.log.Debug("no recipients, skipping scan")
		return nil
	}
	events, err := s.cal.ListUpcoming(ctx, s.cfg.UpcomingLimit)
	if err != nil {
		return fmt.Errorf("list upcoming: %w", err)
	}
	for _, ev := range events {
		if ev.Muted {
			continue
		}
		th := Active(ev.Start, now)
		if th == ThresholdNone {
			continue
		}
		key := DedupKey(ev)
		if !s.ledger.ShouldFire(th, key) {
			continue
		}
		text := s.render(ev, th, now)
		rep := s.disp.Broadcast(ctx, targets, text, s.prune)
		s.ledger.MarkFired(th, key, ev.Start)
		s.log.Info("reminder fired",
			logx.String("event_id", ev.ID),
			logx.String("threshold", th.String()),
			logx.Int("sent", rep.Sent),
			logx.Int("failed", rep.Failed),
			logx.Int("removed", len(rep.Removed)))
	}
	return nil
}
