package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone applies when calendar.timezone is empty.
const DefaultTimezone = "Asia/Seoul"

// Validate checks cfg for hard errors. Fields with sensible defaults are
// left alone; callers apply defaults when reading.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Calendar.CredentialsPath) == "" {
		return errors.New("calendar.credentials_path is required")
	}
	if cfg.Calendar.UpcomingLimit < 0 {
		return errors.New("calendar.upcoming_limit must be >= 0")
	}
	if _, err := ParseDurationField("reminder.poll_interval", cfg.Reminder.PollInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.grace", cfg.Reminder.Grace); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.retry_delay", cfg.Dispatch.RetryDelay); err != nil {
		return err
	}
	if cfg.Dispatch.RatePerSec < 0 {
		return errors.New("dispatch.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("confirm.timeout", cfg.Confirm.Timeout); err != nil {
		return err
	}
	if cfg.Storage != nil {
		driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		switch driver {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if (driver == "file" || driver == "sqlite" || driver == "sqlite3") &&
			strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required for driver " + driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// ReminderPruneSpec resolves the configured retention sweep schedule.
// Empty means the default nightly sweep; "off" disables it.
func (c ReminderConfig) ReminderPruneSpec() string {
	s := strings.TrimSpace(c.PruneSpec)
	switch strings.ToLower(s) {
	case "":
		return "0 4 * * *"
	case "off", "none", "disabled":
		return ""
	default:
		return s
	}
}

// Location resolves the calendar timezone, defaulting to Asia/Seoul.
func (c CalendarConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	return time.LoadLocation(tz)
}
