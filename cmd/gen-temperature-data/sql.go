package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/source"
	"github.com/pv/temperature-notifier-go/internal/source/clickhouse"
	"github.com/pv/temperature-notifier-go/internal/source/postgres"
	"github.com/pv/temperature-notifier-go/pkg/config"
)

// valueColumns возвращает столбцы значений таблицы истории без повторов.
func valueColumns(m config.Measurements) ([]string, error) {
	cols := []string{m.Indoor.Field}
	if m.Outdoor.Field != m.Indoor.Field {
		cols = append(cols, m.Outdoor.Field)
	}
	for _, c := range cols {
		if err := source.CheckIdentifier(c); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// historyRows разворачивает отсчёт в две строки: (время, имя, значения...).
// Столбец чужого измерения получает missing.
func historyRows(s sample, m config.Measurements, cols []string, missing any) [][]any {
	build := func(name, field string, value float64) []any {
		r := make([]any, 0, 2+len(cols))
		r = append(r, s.ts, name)
		for _, c := range cols {
			if c == field {
				r = append(r, value)
			} else {
				r = append(r, missing)
			}
		}
		return r
	}
	return [][]any{
		build(m.Indoor.Name, m.Indoor.Field, s.indoor),
		build(m.Outdoor.Name, m.Outdoor.Field, s.outdoor),
	}
}

func insertPostgres(ctx context.Context, dsn, table string, gen *generator, m config.Measurements, drop bool, log *zerolog.Logger) (int, error) {
	if table == "" {
		table = postgres.DefaultTable
	}
	if err := source.CheckTable(table); err != nil {
		return 0, err
	}
	cols, err := valueColumns(m)
	if err != nil {
		return 0, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("pg connect: %w", err)
	}
	defer pool.Close()

	if drop {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return 0, fmt.Errorf("drop table: %w", err)
		}
		log.Info().Str("table", table).Msg("table dropped")
	}
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c+" DOUBLE PRECISION")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	time TIMESTAMPTZ NOT NULL,
	sensor TEXT NOT NULL,
	%s
)`, table, strings.Join(defs, ",\n\t"))
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_sensor_time ON %s (sensor, time DESC)", strings.ReplaceAll(table, ".", "_"), table)
	if _, err := pool.Exec(ctx, idx); err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}

	var rows [][]any
	for s, ok := gen.nextSample(); ok; s, ok = gen.nextSample() {
		rows = append(rows, historyRows(s, m, cols, nil)...)
	}
	n, err := pool.CopyFrom(ctx, pgx.Identifier(strings.Split(table, ".")), append([]string{"time", "sensor"}, cols...), pgx.CopyFromRows(rows))
	if err != nil {
		return int(n), fmt.Errorf("copy rows: %w", err)
	}
	return int(n), nil
}

func insertClickhouse(ctx context.Context, dsn, table string, gen *generator, m config.Measurements, drop bool, batchSize int, log *zerolog.Logger) (int, error) {
	opts, database, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return 0, fmt.Errorf("parse dsn: %w", err)
	}
	if table, err = clickhouse.QualifyTable(table, database); err != nil {
		return 0, err
	}
	cols, err := valueColumns(m)
	if err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 10000
	}

	opts.DialTimeout = 10 * time.Second
	conn, err := ch.Open(opts)
	if err != nil {
		return 0, fmt.Errorf("clickhouse open: %w", err)
	}
	defer conn.Close()
	if err := conn.Ping(ctx); err != nil {
		return 0, fmt.Errorf("clickhouse ping: %w", err)
	}

	if drop {
		if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return 0, fmt.Errorf("drop table: %w", err)
		}
		log.Info().Str("table", table).Msg("table dropped")
	}
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c+" Float64 DEFAULT 0")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	timestamp DateTime64(3, 'UTC'),
	name String,
	%s
) ENGINE = MergeTree ORDER BY (name, timestamp)`, table, strings.Join(defs, ",\n\t"))
	if err := conn.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (timestamp, name, %s)", table, strings.Join(cols, ", "))
	batch, err := conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	total, pending := 0, 0
	for s, ok := gen.nextSample(); ok; s, ok = gen.nextSample() {
		for _, r := range historyRows(s, m, cols, 0.0) {
			if err := batch.Append(r...); err != nil {
				return total, fmt.Errorf("append: %w", err)
			}
			pending++
		}
		if pending >= batchSize {
			if err := batch.Send(); err != nil {
				return total, fmt.Errorf("send batch: %w", err)
			}
			total += pending
			pending = 0
			if batch, err = conn.PrepareBatch(ctx, insertSQL); err != nil {
				return total, fmt.Errorf("prepare batch: %w", err)
			}
		}
	}
	if pending > 0 {
		if err := batch.Send(); err != nil {
			return total, fmt.Errorf("send batch: %w", err)
		}
		total += pending
	}
	return total, nil
}
