// Package dispatch fans a message out to a set of Telegram chats with rate
// limiting, transient retries, and pruning of permanently dead recipients.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Report summarizes one fan-out.
type Report struct {
	Sent    int
	Failed  int
	Removed []int64
}

// Pruner removes a recipient that can no longer be delivered to. The roster
// implements it.
type Pruner interface {
	Remove(chatID int64) bool
}

// Config tunes the dispatcher.
type Config struct {
	// RatePerSec caps outgoing sends per second across all recipients.
	RatePerSec float64
	// Burst is the limiter burst size.
	Burst int
	// RetryMax is how many times a transient send failure is retried
	// before the recipient is counted as failed for this fan-out.
	RetryMax int
	// RetryDelay is the pause between transient retries.
	RetryDelay time.Duration
}

func (c *Config) normalize() {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

// Dispatcher delivers texts to many chats through a transport adapter.
type Dispatcher struct {
	cfg     Config
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Dispatcher {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.With(logx.String("component", "dispatch")),
	}
}

// Broadcast sends text to every target. Failures for one recipient never
// abort delivery to the rest. Recipients that fail permanently (blocked
// bot, deleted account, kicked from chat) are removed from prune after the
// iteration and reported in Removed. prune may be nil.
func (d *Dispatcher) Broadcast(ctx context.Context, targets []int64, text string, prune Pruner) Report {
	var rep Report
	for _, chatID := range targets {
		if ctx.Err() != nil {
			rep.Failed += len(targets) - rep.Sent - rep.Failed - len(rep.Removed)
			break
		}
		switch err := d.sendOne(ctx, chatID, text); {
		case err == nil:
			rep.Sent++
		case transport.IsPermanent(err):
			rep.Removed = append(rep.Removed, chatID)
			d.log.Info("recipient gone, pruning",
				logx.Int64("chat_id", chatID), logx.Err(err))
		default:
			rep.Failed++
			d.log.Warn("send failed",
				logx.Int64("chat_id", chatID), logx.Err(err))
		}
	}
	if prune != nil {
		for _, chatID := range rep.Removed {
			prune.Remove(chatID)
		}
	}
	return rep
}

func (d *Dispatcher) sendOne(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.RetryMax; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		err := d.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
		if err == nil {
			return nil
		}
		if transport.IsPermanent(err) {
			return err
		}
		lastErr = err
		if attempt < d.cfg.RetryMax {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.RetryDelay):
			}
		}
	}
	return lastErr
}
