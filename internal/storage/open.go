package storage

import (
	"context"
	"errors"
	"strings"

	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// Store is the persistence API for roster state.
type Store interface {
	LoadRoster(ctx context.Context) (Roster, error)
	SaveRoster(ctx context.Context, r Roster) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
