// Package postgres хранит состояние в таблице PostgreSQL через pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/state"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notifier_state (
	instance_key BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const loadSQL = `SELECT payload::text FROM notifier_state WHERE instance_key = $1`

const saveSQL = `
INSERT INTO notifier_state (instance_key, name, payload, updated_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (instance_key) DO UPDATE SET
	name = EXCLUDED.name,
	payload = EXCLUDED.payload,
	updated_at = EXCLUDED.updated_at`

type Config struct {
	ConnString string
	Name       string
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db     conn
	pool   *pgxpool.Pool
	name   string
	key    int64
	logger *zerolog.Logger
	now    func() time.Time
}

// New подключается к базе и создаёт таблицу, если её нет.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("postgres: instance name is empty")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns = 1
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, state.Fail("postgres", "create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, state.Fail("postgres", "ping", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, state.Fail("postgres", "create table", err)
	}
	s := newStore(pool, cfg.Name, cfg.Logger)
	s.pool = pool
	return s, nil
}

func newStore(db conn, name string, logger *zerolog.Logger) *Store {
	return &Store{
		db:     db,
		name:   name,
		key:    state.InstanceKey(name),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Load(ctx context.Context) (engine.State, error) {
	var payload string
	err := s.db.QueryRow(ctx, loadSQL, s.key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Debug().Str("name", s.name).Msg("no stored state, first run")
		return engine.NewState(), nil
	}
	if err != nil {
		return engine.State{}, state.Fail("postgres", "load", err)
	}
	return state.DecodeOrFresh([]byte(payload), "postgres:"+s.name, s.logger), nil
}

func (s *Store) Save(ctx context.Context, st engine.State) error {
	now := s.now().UTC()
	data, err := state.Encode(st, now)
	if err != nil {
		return state.Fail("postgres", "save", err)
	}
	if _, err := s.db.Exec(ctx, saveSQL, s.key, s.name, string(data), now); err != nil {
		return state.Fail("postgres", "save", err)
	}
	return nil
}

func IsSource(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
