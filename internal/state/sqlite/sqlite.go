// Package sqlite хранит состояние в таблице SQLite (modernc.org/sqlite, без cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/state"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notifier_state (
	instance_key INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const loadSQL = `SELECT payload FROM notifier_state WHERE instance_key = ?`

const saveSQL = `
INSERT INTO notifier_state (instance_key, name, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(instance_key) DO UPDATE SET
	name = excluded.name,
	payload = excluded.payload,
	updated_at = excluded.updated_at;
`

type Config struct {
	Source string
	Name   string
	Logger *zerolog.Logger
}

type Store struct {
	db     *sql.DB
	name   string
	key    int64
	logger *zerolog.Logger
	now    func() time.Time
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	src := NormalizeSource(cfg.Source)
	if src == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("sqlite: instance name is empty")
	}
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return nil, state.Fail("sqlite", "open", err)
	}
	// SQLite: один писатель
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, state.Fail("sqlite", "ping", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, state.Fail("sqlite", "create table", err)
	}
	return &Store{
		db:     db,
		name:   cfg.Name,
		key:    state.InstanceKey(cfg.Name),
		logger: logging.OrNop(cfg.Logger),
		now:    time.Now,
	}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Load читает документ экземпляра. Нет строки: новое состояние.
func (s *Store) Load(ctx context.Context) (engine.State, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, loadSQL, s.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug().Str("name", s.name).Msg("no stored state, first run")
		return engine.NewState(), nil
	}
	if err != nil {
		return engine.State{}, state.Fail("sqlite", "load", err)
	}
	return state.DecodeOrFresh([]byte(payload), "sqlite:"+s.name, s.logger), nil
}

// Save перезаписывает документ экземпляра.
func (s *Store) Save(ctx context.Context, st engine.State) error {
	now := s.now().UTC()
	data, err := state.Encode(st, now)
	if err != nil {
		return state.Fail("sqlite", "save", err)
	}
	if _, err := s.db.ExecContext(ctx, saveSQL, s.key, s.name, string(data), now.Format(time.RFC3339Nano)); err != nil {
		return state.Fail("sqlite", "save", err)
	}
	return nil
}

// IsSource проверяет, что DSN указывает на SQLite: sqlite://, :memory:
// или файл с расширением .db/.sqlite.
func IsSource(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"),
		src == ":memory:":
		return true
	default:
		return false
	}
}

func NormalizeSource(src string) string {
	if strings.HasPrefix(strings.ToLower(src), "sqlite://") {
		return src[len("sqlite://"):]
	}
	return src
}
