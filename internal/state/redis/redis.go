// Package redis хранит состояние под ключом tempnotifier:state:<имя> в Redis/Valkey.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/state"
)

const keyPrefix = "tempnotifier:state:"

type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
	Logger  *zerolog.Logger
}

type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

type Store struct {
	db     kv
	client *goredis.Client
	key    string
	logger *zerolog.Logger
	now    func() time.Time
}

// New разбирает redis://[:password@]host:port/db и проверяет соединение.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("redis: instance name is empty")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, state.Fail("redis", "ping", err)
	}
	s := newStore(client, cfg.Name, cfg.Logger)
	s.client = client
	return s, nil
}

func newStore(db kv, name string, logger *zerolog.Logger) *Store {
	return &Store{
		db:     db,
		key:    Key(name),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Key возвращает ключ Redis для экземпляра.
func Key(name string) string {
	return keyPrefix + name
}

func (s *Store) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *Store) Load(ctx context.Context) (engine.State, error) {
	payload, err := s.db.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		s.logger.Debug().Str("key", s.key).Msg("no stored state, first run")
		return engine.NewState(), nil
	}
	if err != nil {
		return engine.State{}, state.Fail("redis", "load", err)
	}
	return state.DecodeOrFresh(payload, s.key, s.logger), nil
}

// Save записывает документ без срока жизни.
func (s *Store) Save(ctx context.Context, st engine.State) error {
	data, err := state.Encode(st, s.now().UTC())
	if err != nil {
		return state.Fail("redis", "save", err)
	}
	if err := s.db.Set(ctx, s.key, data, 0).Err(); err != nil {
		return state.Fail("redis", "save", err)
	}
	return nil
}

func IsSource(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "redis://") || strings.HasPrefix(lower, "rediss://")
}
