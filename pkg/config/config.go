// Package config загружает и проверяет YAML-конфигурацию уведомителя.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pv/temperature-notifier-go/internal/engine"
)

// ErrInvalid: конфигурация не прошла разбор или проверку.
var ErrInvalid = errors.New("config: invalid configuration")

// Значения по умолчанию для необязательных полей.
const (
	DefaultPath           = "config.yaml"
	DefaultStateDSN       = "notifier_state.json"
	DefaultStateName      = "default"
	DefaultSourceTimeout  = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultLogMaxSizeMB   = 1
	DefaultLogMaxBackups  = 10
	defaultInfluxDBPort   = 8086
	defaultMQTTClientID   = "tempnotifier"
	defaultMQTTPublishTTL = 10 * time.Second
)

// Measurement задаёт имя измерения (measurement/sensor) и поле со значением.
type Measurement struct {
	Name  string `yaml:"name" validate:"required"`
	Field string `yaml:"field" validate:"required"`
}

// Measurements — пара измерений: в помещении и на улице.
type Measurements struct {
	Indoor  Measurement `yaml:"indoor"`
	Outdoor Measurement `yaml:"outdoor"`
}

// SourceConfig описывает источник показаний.
type SourceConfig struct {
	DSN          string        `yaml:"dsn" validate:"required,source_dsn"`
	Table        string        `yaml:"table,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	MaxSampleAge time.Duration `yaml:"max_sample_age,omitempty" validate:"gte=0"`
	Measurements Measurements  `yaml:"measurements"`
}

// LegacyInfluxDB описывает блок `influxdb` в старом формате (host/port/database).
// При загрузке превращается в SourceConfig.
type LegacyInfluxDB struct {
	Host         string       `yaml:"host" validate:"required"`
	Port         int          `yaml:"port" validate:"gte=1,lte=65535"`
	Database     string       `yaml:"database" validate:"required"`
	Username     string       `yaml:"username,omitempty"`
	Password     string       `yaml:"password,omitempty"`
	Measurements Measurements `yaml:"measurements"`
}

// NotifierConfig описывает одного получателя уведомлений. Набор обязательных полей зависит от Type.
type NotifierConfig struct {
	Type string `yaml:"type" validate:"required,oneof=simplepush stdout mqtt kafka"`

	// simplepush
	Key   string `yaml:"key,omitempty" validate:"required_if=Type simplepush"`
	Event string `yaml:"event,omitempty"`
	URL   string `yaml:"url,omitempty" validate:"omitempty,url"`

	// mqtt
	Broker   string        `yaml:"broker,omitempty" validate:"required_if=Type mqtt"`
	ClientID string        `yaml:"client_id,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	QoS      byte          `yaml:"qos,omitempty" validate:"lte=2"`
	Retain   bool          `yaml:"retain,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`

	// kafka
	Brokers []string `yaml:"brokers,omitempty" validate:"required_if=Type kafka,dive,hostname_port"`

	// mqtt и kafka
	Topic string `yaml:"topic,omitempty" validate:"required_if=Type mqtt,required_if=Type kafka"`
}

// RapidChangeEvent — пороги «подъём, затем спад».
type RapidChangeEvent struct {
	Rise          *float64 `yaml:"rise" validate:"required,finite,gte=0"`
	Drop          *float64 `yaml:"drop" validate:"required,finite,gte=0"`
	WindowMinutes *float64 `yaml:"window_minutes" validate:"required,finite,gt=0"`
}

// Reenable задаёт условия повторного уведомления в те же сутки.
type Reenable struct {
	CooldownMinutes             *float64 `yaml:"cooldown_minutes" validate:"required,finite,gt=0"`
	MinRiseBetweenNotifications *float64 `yaml:"min_rise_between_notifications" validate:"required,finite,gte=0"`
}

// Notification — пороги уведомлений.
type Notification struct {
	MinIndoorTemperature *float64         `yaml:"min_indoor_temperature" validate:"required,finite"`
	RapidChangeEvent     RapidChangeEvent `yaml:"rapid_change_event"`
	Reenable             Reenable         `yaml:"reenable"`
}

// Arming — условия взвода; нужно хотя бы одно.
type Arming struct {
	TemperatureDelta *float64 `yaml:"temperature_delta,omitempty" validate:"omitempty,finite"`
	Time             string   `yaml:"time,omitempty" validate:"omitempty,hhmm"`
}

// StateConfig указывает, где хранить состояние между запусками.
type StateConfig struct {
	DSN  string `yaml:"dsn" validate:"required,state_dsn"`
	Name string `yaml:"name" validate:"required"`
}

// LoggingConfig — параметры журнала.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" validate:"oneof=console json"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Config описывает корень конфигурации.
type Config struct {
	Source       SourceConfig     `yaml:"source"`
	InfluxDB     *LegacyInfluxDB  `yaml:"influxdb,omitempty" validate:"omitempty"`
	Notifiers    []NotifierConfig `yaml:"notifiers" validate:"min=1,dive"`
	Notification Notification     `yaml:"notification"`
	Arming       Arming           `yaml:"arming"`
	Timezone     string           `yaml:"timezone,omitempty" validate:"omitempty,timezone"`
	State        StateConfig      `yaml:"state"`
	Logging      LoggingConfig    `yaml:"logging"`
}

// Load читает файл конфигурации, подставляет значения по умолчанию и проверяет результат.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is empty", ErrInvalid)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse декодирует YAML из r. Неизвестные ключи считаются ошибкой.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: document is empty", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: decode YAML: %v", ErrInvalid, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize переносит старый блок influxdb в source и заполняет значения по умолчанию.
func (c *Config) normalize() error {
	if c.InfluxDB != nil {
		if c.Source.DSN != "" {
			return fmt.Errorf("%w: both source and influxdb blocks are set", ErrInvalid)
		}
		c.Source.DSN = c.InfluxDB.DSN()
		c.Source.Measurements = c.InfluxDB.Measurements
	}

	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}
	if c.State.DSN == "" {
		c.State.DSN = DefaultStateDSN
	}
	if c.State.Name == "" {
		c.State.Name = DefaultStateName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}

	for i := range c.Notifiers {
		n := &c.Notifiers[i]
		n.Type = strings.ToLower(strings.TrimSpace(n.Type))
		if n.Type == "mqtt" {
			if n.ClientID == "" {
				n.ClientID = defaultMQTTClientID
			}
			if n.Timeout == 0 {
				n.Timeout = defaultMQTTPublishTTL
			}
		}
	}
	return nil
}

// DSN собирает influxdb:// DSN из старого блока.
func (l *LegacyInfluxDB) DSN() string {
	port := l.Port
	if port == 0 {
		port = defaultInfluxDBPort
	}
	auth := ""
	if l.Username != "" {
		auth = l.Username
		if l.Password != "" {
			auth += ":" + l.Password
		}
		auth += "@"
	}
	return fmt.Sprintf("influxdb://%s%s:%d/%s", auth, l.Host, port, l.Database)
}

// Location возвращает часовой пояс для смены суток и времени взвода.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	return loc, nil
}

// Engine переводит проверенную конфигурацию в пороги движка.
func (c *Config) Engine() (engine.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return engine.Config{}, err
	}

	n := c.Notification
	out := engine.Config{
		MinIndoorTemperature:        deref(n.MinIndoorTemperature),
		Rise:                        deref(n.RapidChangeEvent.Rise),
		Drop:                        deref(n.RapidChangeEvent.Drop),
		Window:                      minutes(deref(n.RapidChangeEvent.WindowMinutes)),
		Cooldown:                    minutes(deref(n.Reenable.CooldownMinutes)),
		MinRiseBetweenNotifications: deref(n.Reenable.MinRiseBetweenNotifications),
		Location:                    loc,
	}
	if c.Arming.TemperatureDelta != nil {
		delta := *c.Arming.TemperatureDelta
		out.TemperatureDelta = &delta
	}
	if c.Arming.Time != "" {
		at, err := engine.ParseTimeOfDay(c.Arming.Time)
		if err != nil {
			return engine.Config{}, fmt.Errorf("%w: arming.time: %v", ErrInvalid, err)
		}
		out.ArmingTime = &at
	}
	if err := out.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}
