//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadRoster(ctx context.Context) (Roster, error) {
	if s == nil || s.db == nil {
		return Roster{}, ErrDisabled
	}
	var r Roster

	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM recipients ORDER BY chat_id`)
	if err != nil {
		return Roster{}, err
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Roster{}, err
		}
		r.Recipients = append(r.Recipients, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Roster{}, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT name, chat_id FROM admins ORDER BY pos`)
	if err != nil {
		return Roster{}, err
	}
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.Name, &a.ChatID); err != nil {
			rows.Close()
			return Roster{}, err
		}
		r.Admins = append(r.Admins, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Roster{}, err
	}
	rows.Close()
	return r, nil
}

func (s *sqliteStore) SaveRoster(ctx context.Context, r Roster) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients`); err != nil {
		return err
	}
	for _, id := range r.Recipients {
		if _, err := tx.ExecContext(ctx, `INSERT INTO recipients(chat_id) VALUES(?)`, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM admins`); err != nil {
		return err
	}
	for pos, a := range r.Admins {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO admins(chat_id, pos, name) VALUES(?,?,?)`, a.ChatID, pos, a.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}
