package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/source/clickhouse"
	"github.com/pv/temperature-notifier-go/internal/source/influxdb"
	"github.com/pv/temperature-notifier-go/internal/source/postgres"
	"github.com/pv/temperature-notifier-go/pkg/config"
)

type options struct {
	config   string
	dsn      string
	start    string
	duration time.Duration
	step     time.Duration
	seed     int64
	lpOutput string // если задано, пишем Line Protocol в файл
	drop     bool   // drop measurements (таблицы) перед вставкой
	table    string
	batch    int

	outdoorMean float64
	outdoorAmp  float64
	indoorMean  float64
	bumpAt      string
	bumpRise    float64
	bumpDrop    float64
}

func main() {
	opts := parseFlags()
	root := logging.New(logging.Options{})
	log := &root.Logger

	cfg, err := config.Load(opts.config)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	dsn := opts.dsn
	if dsn == "" {
		dsn = cfg.Source.DSN
	}

	start, err := time.Parse(time.RFC3339, opts.start)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid --start")
	}
	p := profile{
		OutdoorMean:      opts.outdoorMean,
		OutdoorAmplitude: opts.outdoorAmp,
		IndoorMean:       opts.indoorMean,
		IndoorAmplitude:  0.8,
		Noise:            0.2,
		BumpRise:         opts.bumpRise,
		BumpDrop:         opts.bumpDrop,
		BumpUp:           45 * time.Minute,
		BumpDown:         30 * time.Minute,
	}
	if opts.bumpAt != "" {
		if p.BumpAt, err = time.Parse(time.RFC3339, opts.bumpAt); err != nil {
			log.Fatal().Err(err).Msg("invalid --bump-at")
		}
	}
	gen := newGenerator(p, start, start.Add(opts.duration), opts.step, opts.seed)
	m := cfg.Source.Measurements

	if opts.lpOutput != "" {
		n, err := writeLineProtocol(opts.lpOutput, gen, m)
		if err != nil {
			log.Fatal().Err(err).Msg("generate Line Protocol")
		}
		log.Info().Int("points", n).Str("file", opts.lpOutput).Msg("done")
		return
	}

	table := opts.table
	if table == "" {
		table = cfg.Source.Table
	}
	ctx := context.Background()
	var (
		n      int
		target string
	)
	switch {
	case influxdb.IsSource(dsn):
		target = "influxdb"
		n, err = insert(dsn, gen, m, opts.drop, log)
	case postgres.IsSource(dsn):
		target = "postgres"
		n, err = insertPostgres(ctx, dsn, table, gen, m, opts.drop, log)
	case clickhouse.IsSource(dsn):
		target = "clickhouse"
		n, err = insertClickhouse(ctx, dsn, table, gen, m, opts.drop, opts.batch, log)
	default:
		log.Fatal().Msg("unsupported dsn; use influxdb://, postgres://, clickhouse:// or --lp-output")
	}
	if err != nil {
		log.Fatal().Err(err).Str("target", target).Msg("insert data")
	}
	log.Info().Int("rows", n).Str("target", target).Msg("done")
}

// points переводит отсчёт в две точки InfluxDB.
func points(s sample, m config.Measurements) ([]*client.Point, error) {
	in, err := client.NewPoint(m.Indoor.Name, nil, map[string]interface{}{m.Indoor.Field: s.indoor}, s.ts)
	if err != nil {
		return nil, err
	}
	out, err := client.NewPoint(m.Outdoor.Name, nil, map[string]interface{}{m.Outdoor.Field: s.outdoor}, s.ts)
	if err != nil {
		return nil, err
	}
	return []*client.Point{in, out}, nil
}

func writeLineProtocol(path string, gen *generator, m config.Measurements) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# Generated temperatures for InfluxDB (Line Protocol)\n")
	fmt.Fprintf(w, "# indoor: %s.%s, outdoor: %s.%s\n\n", m.Indoor.Name, m.Indoor.Field, m.Outdoor.Name, m.Outdoor.Field)

	total := 0
	for s, ok := gen.nextSample(); ok; s, ok = gen.nextSample() {
		pts, err := points(s, m)
		if err != nil {
			return total, err
		}
		for _, p := range pts {
			fmt.Fprintln(w, p.String())
			total++
		}
	}
	if err := w.Flush(); err != nil {
		return total, err
	}
	return total, nil
}

func insert(dsn string, gen *generator, m config.Measurements, drop bool, log *zerolog.Logger) (int, error) {
	const batchSize = 5000

	addr, database, username, password, err := influxdb.ParseDSN(dsn)
	if err != nil {
		return 0, err
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{Addr: addr, Username: username, Password: password, Timeout: 30 * time.Second})
	if err != nil {
		return 0, fmt.Errorf("influx client: %w", err)
	}
	defer c.Close()

	if drop {
		for _, name := range []string{m.Indoor.Name, m.Outdoor.Name} {
			resp, err := c.Query(client.NewQuery(fmt.Sprintf("DROP MEASUREMENT %q", name), database, ""))
			if err == nil {
				err = resp.Error()
			}
			if err != nil {
				// measurement может отсутствовать
				log.Warn().Err(err).Str("measurement", name).Msg("drop ignored")
			}
		}
	}

	newBatch := func() (client.BatchPoints, error) {
		return client.NewBatchPoints(client.BatchPointsConfig{Database: database, Precision: "s"})
	}
	bp, err := newBatch()
	if err != nil {
		return 0, err
	}
	total := 0
	for s, ok := gen.nextSample(); ok; s, ok = gen.nextSample() {
		pts, err := points(s, m)
		if err != nil {
			return total, err
		}
		bp.AddPoints(pts)
		if len(bp.Points()) >= batchSize {
			if err := c.Write(bp); err != nil {
				return total, fmt.Errorf("write batch: %w", err)
			}
			total += len(bp.Points())
			if bp, err = newBatch(); err != nil {
				return total, err
			}
		}
	}
	if n := len(bp.Points()); n > 0 {
		if err := c.Write(bp); err != nil {
			return total, fmt.Errorf("write batch: %w", err)
		}
		total += n
	}
	return total, nil
}

func parseFlags() options {
	var opt options
	flag.StringVar(&opt.config, "config", config.DefaultPath, "notifier config (measurement names and source dsn)")
	flag.StringVar(&opt.dsn, "dsn", "", "InfluxDB, PostgreSQL or ClickHouse DSN (default: source.dsn from config)")
	defaultStart := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Hour).Format(time.RFC3339)
	flag.StringVar(&opt.start, "start", defaultStart, "start timestamp (RFC3339)")
	flag.DurationVar(&opt.duration, "duration", 48*time.Hour, "total time range to generate")
	flag.DurationVar(&opt.step, "step", 5*time.Minute, "interval between samples")
	flag.Int64Var(&opt.seed, "seed", 1, "random seed")
	flag.StringVar(&opt.lpOutput, "lp-output", "", "write Line Protocol to file instead of inserting")
	flag.BoolVar(&opt.drop, "drop", false, "drop measurements or history table before insert")
	flag.StringVar(&opt.table, "table", "", "history table for SQL targets (default: source.table from config)")
	flag.IntVar(&opt.batch, "batch", 10000, "rows per ClickHouse batch")
	flag.Float64Var(&opt.outdoorMean, "outdoor-mean", 18, "mean outdoor temperature, °C")
	flag.Float64Var(&opt.outdoorAmp, "outdoor-amplitude", 6, "half of the daily outdoor swing, °C")
	flag.Float64Var(&opt.indoorMean, "indoor-mean", 22.5, "mean indoor temperature, °C")
	flag.StringVar(&opt.bumpAt, "bump-at", "", "start of a rise-then-drop outdoor bump (RFC3339); empty disables it")
	flag.Float64Var(&opt.bumpRise, "bump-rise", 4, "bump rise, °C")
	flag.Float64Var(&opt.bumpDrop, "bump-drop", 2, "bump drop after the peak, °C")
	flag.Parse()
	return opt
}
