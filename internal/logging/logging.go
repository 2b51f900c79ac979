// Package logging собирает корневой zerolog-логгер: консоль плюс необязательный
// файл с ротацией.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options задаёт параметры журнала.
type Options struct {
	Level      string // trace | debug | info | warn | error
	Format     string // console | json
	Debug      bool   // --debug: уровень debug независимо от Level
	File       string // пусто: только консоль
	MaxSizeMB  int
	MaxBackups int
	Writer     io.Writer // консольный вывод; nil означает os.Stderr
	Fields     map[string]string
}

// Logger закрывает файл ротации вместе с логгером.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New строит логгер по Options.
func New(opt Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var console io.Writer = os.Stderr
	if opt.Writer != nil {
		console = opt.Writer
	}
	json := strings.EqualFold(opt.Format, "json")
	if !json {
		console = zerolog.ConsoleWriter{Out: console, NoColor: opt.Writer != nil, PartsExclude: []string{zerolog.TimestampFieldName}}
	}

	out := &Logger{}
	writers := []io.Writer{console}
	if opt.File != "" {
		out.file = &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    opt.MaxSizeMB,
			MaxBackups: opt.MaxBackups,
		}
		var fileWriter io.Writer = out.file
		if !json {
			fileWriter = zerolog.ConsoleWriter{Out: out.file, NoColor: true, TimeFormat: time.DateTime}
		}
		writers = append(writers, fileWriter)
	}

	level := ParseLevel(opt.Level)
	if opt.Debug {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	for k, v := range opt.Fields {
		ctx = ctx.Str(k, v)
	}
	out.Logger = ctx.Logger()
	return out
}

// Close закрывает файл журнала, если он открыт.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Named возвращает дочерний логгер с полем component.
func (l *Logger) Named(component string) *zerolog.Logger {
	child := l.With().Str("component", component).Logger()
	return &child
}

// ParseLevel разбирает имя уровня; неизвестное значение даёт info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var nop = zerolog.Nop()

// OrNop возвращает l либо выключенный логгер, если l == nil.
func OrNop(l *zerolog.Logger) *zerolog.Logger {
	if l == nil {
		return &nop
	}
	return l
}
