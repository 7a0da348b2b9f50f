// Package app wires configuration, logging, the Telegram adapter, the
// calendar client, and the reminder scheduler into one lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/bot"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/calendar"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/config"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/confirm"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/dispatch"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/reminder"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/roster"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/runtime/supervisor"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/storage"
	kit "github.com/leetk321/KTU-GG-Alert-v2/internal/transport"
	telegram "github.com/leetk321/KTU-GG-Alert-v2/internal/transport/telegram"
	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter  kit.Adapter
	cal      *calendar.Client
	store    storage.Store
	members  *roster.Roster
	disp     *dispatch.Dispatcher
	confirms *confirm.Manager
	router   *bot.Router
	remind   *reminder.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return nil, err
	}
	tokens, err := calendar.FileTokenProvider(cfg.Calendar.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("calendar credentials: %w", err)
	}
	cal, err := calendar.NewClient(calendar.Options{
		BaseURL:       cfg.Calendar.BaseURL,
		CalendarID:    cfg.Calendar.CalendarID,
		TokenProvider: tokens,
		Location:      loc,
		Logger:        log.With(logx.String("comp", "calendar")),
	})
	if err != nil {
		return nil, err
	}

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	members := roster.New(store, log)

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, ad, log.With(logx.String("comp", "dispatch")))

	confirmTimeout, err := parseDurationOrDefault("confirm.timeout", cfg.Confirm.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	confirms := confirm.New(confirmTimeout)
	confirms.OnExpire(func(chatID int64, _ confirm.Action) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, "❌ 시간이 초과되어 작업이 취소되었습니다.", nil); err != nil {
			log.Warn("confirm expiry notice failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
	})

	handlers := bot.NewHandlers(log, cal, members, disp, confirms, bot.Options{
		UpcomingLimit: cfg.Calendar.UpcomingLimit,
		// Read through the manager so a hot reload takes effect immediately.
		Password: func() string { return cfgm.Get().Telegram.AdminPassword },
	})
	router := bot.NewRouter(log, ad, members)
	router.Use(bot.MWPanicRecover(log), bot.MWRequestLog(log))
	router.Register(handlers.Commands()...)
	router.SetFallback(handlers.Fallback)

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}
	remind := reminder.New(rcfg, cal, disp, members, members, bot.RenderReminder, log)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		adapter:  ad,
		cal:      cal,
		store:    store,
		members:  members,
		disp:     disp,
		confirms: confirms,
		router:   router,
		remind:   remind,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app run context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapReminderConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	loadCtx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	err := a.members.Load(loadCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("roster load: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("reminder.run", func(c context.Context) error {
		return a.remind.Run(c)
	})

	// Hot reload fan-out. Logging applies live; everything else that was
	// bound at construction time only gets a restart warning.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(old, cfg *config.Config) {
	if old == nil || cfg == nil {
		return
	}

	if cfg.Logging != old.Logging {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
	}

	// The admin password is read through the manager on every use, so a
	// change needs no action here.
	for _, s := range restartSections(old, cfg) {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("section", s))
	}

	a.log.Info("config reloaded")
}

func restartSections(old, cfg *config.Config) []string {
	var out []string
	if cfg.Telegram.Token != old.Telegram.Token || cfg.Telegram.PollTimeout != old.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if cfg.Calendar != old.Calendar {
		out = append(out, "calendar")
	}
	if cfg.Reminder != old.Reminder {
		out = append(out, "reminder")
	}
	if cfg.Dispatch != old.Dispatch {
		out = append(out, "dispatch")
	}
	if cfg.Confirm != old.Confirm {
		out = append(out, "confirm")
	}
	oldStore, newStore := config.StorageConfig{}, config.StorageConfig{}
	if old.Storage != nil {
		oldStore = *old.Storage
	}
	if cfg.Storage != nil {
		newStore = *cfg.Storage
	}
	if oldStore != newStore {
		out = append(out, "storage")
	}
	return out
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("roster", 2*time.Second, func(c context.Context) error { return a.members.Flush(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
