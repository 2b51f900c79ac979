package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/source"
)

// Config описывает чтение из таблицы (TimescaleDB/PostgreSQL).
// Ожидается таблица со столбцами time, sensor и столбцами значений.
type Config struct {
	ConnString string
	Table      string
	Indoor     source.Measurement
	Outdoor    source.Measurement
	Timeout    time.Duration
	MaxConns   int32
	Logger     *zerolog.Logger
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store читает последние значения из PostgreSQL.
type Store struct {
	db      rowQuerier
	pool    *pgxpool.Pool
	table   string
	indoor  source.Measurement
	outdoor source.Measurement
	timeout time.Duration
	log     *zerolog.Logger
}

// DefaultTable используется, если source.table не задан.
const DefaultTable = "sensor_history"

// New создаёт пул соединений и проверяет доступность базы.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is empty")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := source.CheckTable(table); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	for _, m := range []source.Measurement{cfg.Indoor, cfg.Outdoor} {
		if err := source.CheckIdentifier(m.Field); err != nil {
			return nil, fmt.Errorf("postgres: field: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns = 2
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres: ping: %v", source.ErrDataUnavailable, err)
	}

	s := newStore(pool, table, cfg)
	s.pool = pool
	s.checkTimezone(ctx)
	return s, nil
}

func newStore(db rowQuerier, table string, cfg Config) *Store {
	return &Store{
		db:      db,
		table:   table,
		indoor:  cfg.Indoor,
		outdoor: cfg.Outdoor,
		timeout: cfg.Timeout,
		log:     logging.OrNop(cfg.Logger),
	}
}

// checkTimezone пишет в журнал часовой пояс сервера; timestamptz от него не зависит.
func (s *Store) checkTimezone(ctx context.Context) {
	var tz string
	if err := s.db.QueryRow(ctx, "SHOW timezone").Scan(&tz); err != nil {
		s.log.Warn().Err(err).Msg("postgres: failed to check timezone")
		return
	}
	if tz != "UTC" && tz != "Etc/UTC" {
		s.log.Debug().Str("timezone", tz).Msg("postgres: server timezone is not UTC")
	}
}

// Close закрывает пул.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FetchLatest возвращает последние значения в помещении и на улице.
func (s *Store) FetchLatest(ctx context.Context) (source.Reading, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return source.FetchPair(ctx, s.indoor, s.outdoor, s.latest)
}

func (s *Store) latest(ctx context.Context, m source.Measurement) (source.Point, error) {
	query := fmt.Sprintf(latestSQL, m.Field, s.table)
	s.log.Debug().Str("query", query).Str("sensor", m.Name).Msg("postgres: query")

	var (
		ts    time.Time
		value *float64
	)
	if err := s.db.QueryRow(ctx, query, m.Name).Scan(&ts, &value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return source.Point{}, source.ErrNoRows
		}
		return source.Point{}, fmt.Errorf("postgres: latest %s: %w", m.Name, err)
	}
	if value == nil {
		return source.Point{}, fmt.Errorf("postgres: latest %s: value is null", m.Name)
	}
	return source.Point{Time: ts, Value: *value}, nil
}

const latestSQL = `SELECT time, %s FROM %s WHERE sensor = $1 ORDER BY time DESC LIMIT 1`

// IsSource проверяет, является ли DSN PostgreSQL-источником.
func IsSource(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
