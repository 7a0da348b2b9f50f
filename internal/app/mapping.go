package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/leetk321/KTU-GG-Alert-v2/internal/config"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/dispatch"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/reminder"
	"github.com/leetk321/KTU-GG-Alert-v2/internal/storage"
)

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := parseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver is set")
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	interval, err := parseDurationOrDefault("reminder.poll_interval", cfg.Reminder.PollInterval, time.Minute)
	if err != nil {
		return reminder.Config{}, err
	}
	grace, err := parseDurationOrDefault("reminder.grace", cfg.Reminder.Grace, 24*time.Hour)
	if err != nil {
		return reminder.Config{}, err
	}
	return reminder.Config{
		Enabled:       cfg.Reminder.Enabled,
		Interval:      interval,
		UpcomingLimit: cfg.Calendar.UpcomingLimit,
		PruneSpec:     cfg.Reminder.ReminderPruneSpec(),
		Grace:         grace,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	retryDelay, err := parseDurationOrDefault("dispatch.retry_delay", cfg.Dispatch.RetryDelay, 500*time.Millisecond)
	if err != nil {
		return dispatch.Config{}, err
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	if cfg.Dispatch.Burst < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.burst must be >= 0")
	}
	if cfg.Dispatch.RetryMax < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.retry_max must be >= 0")
	}
	return dispatch.Config{
		RatePerSec: cfg.Dispatch.RatePerSec,
		Burst:      cfg.Dispatch.Burst,
		RetryMax:   cfg.Dispatch.RetryMax,
		RetryDelay: retryDelay,
	}, nil
}
