package config

// Config is the full application configuration. Files may be JSON or YAML;
// both go through a strict decoder that rejects unknown keys.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Calendar CalendarConfig `json:"calendar"`
	Reminder ReminderConfig `json:"reminder"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Confirm  ConfirmConfig  `json:"confirm,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout, a Go duration string.
	PollTimeout string `json:"poll_timeout"`
	// AdminPassword gates /admin registration. Empty disables registration.
	AdminPassword string `json:"admin_password,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CalendarConfig points at the Google Calendar backing the schedule.
type CalendarConfig struct {
	// BaseURL overrides the API endpoint. Leave empty for production.
	BaseURL    string `json:"base_url,omitempty"`
	CalendarID string `json:"calendar_id"`
	// CredentialsPath is a file holding the OAuth bearer token.
	CredentialsPath string `json:"credentials_path"`
	// Timezone for all-day events and display. Default: "Asia/Seoul".
	Timezone string `json:"timezone,omitempty"`
	// UpcomingLimit caps how many events one scan fetches. Default: 300.
	UpcomingLimit int `json:"upcoming_limit,omitempty"`
}

// ReminderConfig controls the notification scheduler.
type ReminderConfig struct {
	Enabled bool `json:"enabled"`
	// PollInterval between calendar scans. Default: "1m".
	PollInterval string `json:"poll_interval,omitempty"`
	// PruneSpec is a cron expression for the dedup retention sweep.
	// Default: "0 4 * * *". Empty string keeps the default; "off" disables.
	PruneSpec string `json:"prune_spec,omitempty"`
	// Grace is how long fired entries are retained past the event start.
	Grace string `json:"grace,omitempty"`
}

// DispatchConfig controls fan-out delivery.
type DispatchConfig struct {
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	RetryMax   int     `json:"retry_max,omitempty"`
	RetryDelay string  `json:"retry_delay,omitempty"`
}

// ConfirmConfig controls the destructive-command confirmation window.
type ConfirmConfig struct {
	Timeout string `json:"timeout,omitempty"`
}

// StorageConfig controls roster persistence. Nil disables it.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./kgalert_roster.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
