package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON file backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and rosters live only
// in memory for the process lifetime.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Admin is one admin entry. Name is display-only; ChatID is identity.
type Admin struct {
	Name   string `json:"name"`
	ChatID int64  `json:"chat_id"`
}

// Roster is the persisted membership state: reminder recipients and the
// ordered admin list.
type Roster struct {
	Recipients []int64 `json:"recipients"`
	Admins     []Admin `json:"admins"`
}
