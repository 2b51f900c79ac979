package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/notify"
	"github.com/pv/temperature-notifier-go/internal/notify/kafka"
	"github.com/pv/temperature-notifier-go/internal/notify/mqtt"
	"github.com/pv/temperature-notifier-go/internal/notify/simplepush"
	"github.com/pv/temperature-notifier-go/internal/source"
	"github.com/pv/temperature-notifier-go/internal/source/clickhouse"
	"github.com/pv/temperature-notifier-go/internal/source/influxdb"
	"github.com/pv/temperature-notifier-go/internal/source/memstore"
	"github.com/pv/temperature-notifier-go/internal/source/postgres"
	"github.com/pv/temperature-notifier-go/internal/state"
	pgState "github.com/pv/temperature-notifier-go/internal/state/postgres"
	redisState "github.com/pv/temperature-notifier-go/internal/state/redis"
	sqliteState "github.com/pv/temperature-notifier-go/internal/state/sqlite"
	"github.com/pv/temperature-notifier-go/pkg/config"
)

func nop() {}

// initSource выбирает источник по схеме DSN.
func initSource(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (source.Source, func(), error) {
	sc := cfg.Source
	indoor := source.Measurement{Name: sc.Measurements.Indoor.Name, Field: sc.Measurements.Indoor.Field}
	outdoor := source.Measurement{Name: sc.Measurements.Outdoor.Name, Field: sc.Measurements.Outdoor.Field}

	switch {
	case memstore.IsSource(sc.DSN):
		s, err := memstore.FromDSN(sc.DSN, time.Now())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		return s, nop, nil

	case influxdb.IsSource(sc.DSN):
		s, err := influxdb.New(ctx, influxdb.Config{DSN: sc.DSN, Indoor: indoor, Outdoor: outdoor, Timeout: sc.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case clickhouse.IsSource(sc.DSN):
		s, err := clickhouse.New(ctx, clickhouse.Config{DSN: sc.DSN, Table: sc.Table, Indoor: indoor, Outdoor: outdoor, Timeout: sc.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case postgres.IsSource(sc.DSN):
		s, err := postgres.New(ctx, postgres.Config{ConnString: sc.DSN, Table: sc.Table, Indoor: indoor, Outdoor: outdoor, Timeout: sc.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unsupported source dsn %s", config.ErrInvalid, redact(sc.DSN))
}

// initState выбирает хранилище состояния по DSN; путь без схемы означает JSON-файл.
func initState(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (state.Store, func(), error) {
	dsn, name := cfg.State.DSN, cfg.State.Name

	switch {
	case state.IsMemory(dsn):
		return state.NewMemoryStore(), nop, nil

	case sqliteState.IsSource(dsn):
		s, err := sqliteState.New(ctx, sqliteState.Config{Source: dsn, Name: name, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case pgState.IsSource(dsn):
		s, err := pgState.New(ctx, pgState.Config{ConnString: dsn, Name: name, Timeout: cfg.Source.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case redisState.IsSource(dsn):
		s, err := redisState.New(ctx, redisState.Config{URL: dsn, Name: name, Timeout: cfg.Source.Timeout, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case state.IsFile(dsn):
		s, err := state.NewFileStore(dsn, log)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		return s, nop, nil
	}
	return nil, nil, fmt.Errorf("%w: unsupported state dsn %s", config.ErrInvalid, redact(dsn))
}

// initNotifiers создаёт каналы в порядке конфигурации.
func initNotifiers(cfg *config.Config, stdout io.Writer, log *zerolog.Logger) ([]notify.Notifier, func(), error) {
	var (
		out     []notify.Notifier
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("close notifier")
			}
		}
	}

	for i, nc := range cfg.Notifiers {
		timeout := nc.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		switch nc.Type {
		case "simplepush":
			out = append(out, &simplepush.Client{
				Key:    nc.Key,
				Event:  nc.Event,
				URL:    nc.URL,
				HTTP:   &http.Client{Timeout: timeout},
				Logger: log,
			})
		case "stdout":
			out = append(out, &notify.StdoutNotifier{Writer: stdout})
		case "mqtt":
			n, err := mqtt.New(mqtt.Config{
				Broker:   nc.Broker,
				ClientID: nc.ClientID,
				Username: nc.Username,
				Password: nc.Password,
				Topic:    nc.Topic,
				QoS:      nc.QoS,
				Retain:   nc.Retain,
				Timeout:  timeout,
				Logger:   log,
			})
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("notifiers[%d]: %w", i, err)
			}
			out = append(out, n)
		case "kafka":
			n, err := kafka.New(kafka.Config{Brokers: nc.Brokers, Topic: nc.Topic, Timeout: timeout, Logger: log})
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("notifiers[%d]: %w", i, err)
			}
			out = append(out, n)
			closers = append(closers, n.Close)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("notifiers[%d]: unsupported type %q", i, nc.Type)
		}
	}
	return out, closeAll, nil
}

// redact скрывает пароль в DSN для журнала.
func redact(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "<invalid dsn>"
	}
	return u.Redacted()
}
