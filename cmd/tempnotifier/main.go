package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/cycle"
	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/notify"
	"github.com/pv/temperature-notifier-go/internal/runlock"
	"github.com/pv/temperature-notifier-go/internal/source"
	"github.com/pv/temperature-notifier-go/internal/state"
	"github.com/pv/temperature-notifier-go/pkg/config"
)

const version = "1.0.0"

// Коды завершения.
const (
	exitOK     = 0
	exitConfig = 1
	exitData   = 2
	exitState  = 3
	exitLocked = 4
)

type options struct {
	config      string
	stateDSN    string
	logFile     string
	lockFile    string
	generateCfg string
	debug       bool
	dryRun      bool
	version     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opt options
	fs := flag.NewFlagSet("tempnotifier", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opt.config, "config", config.DefaultPath, "path to YAML configuration")
	fs.StringVar(&opt.stateDSN, "state", "", "state store: file path, sqlite://, postgres://, redis:// or memory:// (overrides state.dsn)")
	fs.StringVar(&opt.logFile, "log-file", "", "write logs to a rotating file in addition to stderr (overrides logging.file)")
	fs.StringVar(&opt.lockFile, "lock-file", "", "take an exclusive lock on this file; exit if another run holds it")
	fs.StringVar(&opt.generateCfg, "generate-config", "", "write example YAML config to file (use '-' for stdout) and exit")
	fs.BoolVar(&opt.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&opt.dryRun, "dry-run", false, "evaluate and log the decision without sending notifications or saving state")
	fs.BoolVar(&opt.version, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintln(fs.Output(), "Reads the latest indoor/outdoor temperatures, decides whether to notify and exits.")
		fmt.Fprintln(fs.Output(), "Run it periodically (cron, systemd timer). Example:")
		fmt.Fprintf(fs.Output(), "  %s --config /etc/tempnotifier/config.yaml --lock-file /run/tempnotifier.lock\n\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opt, err
	}
	if fs.NArg() > 0 {
		return opt, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opt, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	if opts.version {
		fmt.Fprintln(stdout, "tempnotifier", version)
		return exitOK
	}

	if opts.generateCfg != "" {
		if err := config.WriteExample(opts.generateCfg, stdout); err != nil {
			fmt.Fprintf(stderr, "write example config: %v\n", err)
			return exitConfig
		}
		return exitOK
	}

	boot := logging.New(logging.Options{Writer: stderr, Debug: opts.debug, File: opts.logFile})
	cfg, err := loadConfig(opts)
	if err != nil {
		boot.Error().Err(err).Str("config", opts.config).Msg("configuration rejected")
		boot.Close()
		return exitConfig
	}
	boot.Close()

	root := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Debug:      opts.debug,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Writer:     stderr,
		Fields:     map[string]string{"instance": cfg.State.Name},
	})
	defer root.Close()
	log := &root.Logger

	if opts.lockFile != "" {
		lock, err := runlock.Acquire(opts.lockFile)
		if err != nil {
			log.Warn().Err(err).Msg("another run is in progress, exiting")
			return exitCode(err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn().Err(err).Str("lock_file", lock.Path()).Msg("failed to release lock")
			}
		}()
	}

	return execute(ctx, cfg, opts, stdout, root)
}

// loadConfig читает YAML и накладывает поверх значения флагов.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, err
	}
	if opts.stateDSN != "" {
		cfg.State.DSN = opts.stateDSN
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func execute(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer, root *logging.Logger) int {
	log := &root.Logger
	engineCfg, err := cfg.Engine()
	if err != nil {
		log.Error().Err(err).Msg("invalid engine thresholds")
		return exitConfig
	}

	store, closeState, err := initState(ctx, cfg, root.Named("state"))
	if err != nil {
		log.Error().Err(err).Str("dsn", redact(cfg.State.DSN)).Msg("failed to open state store")
		return exitCode(err)
	}
	defer closeState()

	src, closeSource, err := initSource(ctx, cfg, root.Named("source"))
	if err != nil {
		log.Error().Err(err).Str("dsn", redact(cfg.Source.DSN)).Msg("failed to open data source")
		return exitCode(err)
	}
	defer closeSource()

	notifiers, closeNotifiers, err := initNotifiers(cfg, stdout, root.Named("notify"))
	if err != nil {
		log.Error().Err(err).Msg("failed to set up notifiers")
		return exitConfig
	}
	defer closeNotifiers()

	svc := cycle.Service{
		Source:       src,
		State:        store,
		Notifiers:    notifiers,
		Engine:       engineCfg,
		MaxSampleAge: cfg.Source.MaxSampleAge,
		DryRun:       opts.dryRun,
		Logger:       root.Named("cycle"),
	}
	start := time.Now()
	out, err := svc.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", out.RunID).Msg("cycle failed")
		return exitCode(err)
	}
	logOutcome(log, out, time.Since(start))
	return exitOK
}

func logOutcome(log *zerolog.Logger, out cycle.Outcome, elapsed time.Duration) {
	ev := log.Info().
		Str("run_id", out.RunID).
		Bool("fired", out.Decision.Fire).
		Str("branch", out.Trace.Branch.String()).
		Bool("saved", out.Saved).
		Dur("elapsed", elapsed)
	if out.Decision.Fire {
		ev = ev.Str("reason", out.Decision.Reason.String())
	}
	if failed := notify.Failed(out.Results); failed != nil {
		ev = ev.AnErr("delivery", failed)
	}
	ev.Msg("cycle finished")
}

// exitCode отображает ошибку на код завершения.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, runlock.ErrLocked):
		return exitLocked
	case errors.Is(err, config.ErrInvalid):
		return exitConfig
	case errors.Is(err, source.ErrDataUnavailable):
		return exitData
	case errors.Is(err, cycle.ErrStateLoad), errors.Is(err, state.ErrPersistence):
		return exitState
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitData
	default:
		return exitConfig
	}
}
