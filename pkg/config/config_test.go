package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const baseYAML = `
source:
  dsn: influxdb://localhost:8086/home
  measurements:
    indoor: {name: livingroom, field: temperature}
    outdoor: {name: weather, field: temperature}
notifiers:
  - type: simplepush
    key: abc
notification:
  min_indoor_temperature: 21.5
  rapid_change_event: {rise: 3.0, drop: 1.0, window_minutes: 180}
  reenable: {cooldown_minutes: 120, min_rise_between_notifications: 2.0}
arming:
  temperature_delta: 2.0
  time: "18:00"
`

func parseString(t *testing.T, s string) (*Config, error) {
	t.Helper()
	return Parse(strings.NewReader(s))
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := parseString(t, baseYAML)
	require.NoError(t, err)

	require.Equal(t, DefaultSourceTimeout, cfg.Source.Timeout)
	require.Equal(t, DefaultStateDSN, cfg.State.DSN)
	require.Equal(t, DefaultStateName, cfg.State.Name)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
	require.Equal(t, 10, cfg.Logging.MaxBackups)
}

func TestEngineConversion(t *testing.T) {
	cfg, err := parseString(t, baseYAML+"timezone: UTC\n")
	require.NoError(t, err)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	require.Equal(t, 21.5, ec.MinIndoorTemperature)
	require.Equal(t, 3.0, ec.Rise)
	require.Equal(t, 1.0, ec.Drop)
	require.Equal(t, 180*time.Minute, ec.Window)
	require.Equal(t, 120*time.Minute, ec.Cooldown)
	require.Equal(t, 2.0, ec.MinRiseBetweenNotifications)
	require.NotNil(t, ec.TemperatureDelta)
	require.Equal(t, 2.0, *ec.TemperatureDelta)
	require.NotNil(t, ec.ArmingTime)
	require.Equal(t, "18:00", ec.ArmingTime.String())
	require.Equal(t, time.UTC, ec.Location)
}

func TestLegacyInfluxDBBlock(t *testing.T) {
	doc := strings.Replace(baseYAML, `source:
  dsn: influxdb://localhost:8086/home
`, `influxdb:
  host: db.local
  port: 8087
  database: home
`, 1)
	cfg, err := parseString(t, doc)
	require.NoError(t, err)
	require.Equal(t, "influxdb://db.local:8087/home", cfg.Source.DSN)
	require.Equal(t, "livingroom", cfg.Source.Measurements.Indoor.Name)
}

func TestLegacyDSNWithCredentials(t *testing.T) {
	l := LegacyInfluxDB{Host: "h", Port: 8086, Database: "db", Username: "u", Password: "p"}
	require.Equal(t, "influxdb://u:p@h:8086/db", l.DSN())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "unknown key",
			doc:   baseYAML + "bogus: 1\n",
			field: "",
		},
		{
			name:  "no arming condition",
			doc:   strings.Replace(baseYAML, "  temperature_delta: 2.0\n  time: \"18:00\"\n", "  {}\n", 1),
			field: "arming.time",
		},
		{
			name:  "bad arming time",
			doc:   strings.Replace(baseYAML, `"18:00"`, `"25:00"`, 1),
			field: "arming.time",
		},
		{
			name:  "zero window",
			doc:   strings.Replace(baseYAML, "window_minutes: 180", "window_minutes: 0", 1),
			field: "notification.rapid_change_event.window_minutes",
		},
		{
			name:  "missing cooldown",
			doc:   strings.Replace(baseYAML, "cooldown_minutes: 120, ", "", 1),
			field: "notification.reenable.cooldown_minutes",
		},
		{
			name:  "no notifiers",
			doc:   strings.Replace(baseYAML, "  - type: simplepush\n    key: abc\n", "  []\n", 1),
			field: "notifiers",
		},
		{
			name:  "simplepush without key",
			doc:   strings.Replace(baseYAML, "    key: abc\n", "", 1),
			field: "notifiers[0].key",
		},
		{
			name:  "unsupported notifier",
			doc:   strings.Replace(baseYAML, "type: simplepush", "type: telegram", 1),
			field: "notifiers[0].type",
		},
		{
			name:  "unsupported source",
			doc:   strings.Replace(baseYAML, "influxdb://localhost:8086/home", "mysql://localhost/home", 1),
			field: "source.dsn",
		},
		{
			name:  "bad timezone",
			doc:   baseYAML + "timezone: Mars/Olympus\n",
			field: "timezone",
		},
		{
			name:  "unsupported state dsn",
			doc:   baseYAML + "state: {dsn: \"mongodb://x\", name: a}\n",
			field: "state.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.doc)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalid), "error %v must wrap ErrInvalid", err)
			if tt.field == "" {
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
			var fields []string
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			require.Contains(t, fields, tt.field)
		})
	}
}

func TestMQTTAndKafkaNotifiers(t *testing.T) {
	doc := strings.Replace(baseYAML, "  - type: simplepush\n    key: abc\n", `  - type: MQTT
    broker: tcp://localhost:1883
    topic: home/notifier
    qos: 1
  - type: kafka
    brokers: ["localhost:9092"]
    topic: home.notifier
`, 1)
	cfg, err := parseString(t, doc)
	require.NoError(t, err)
	require.Len(t, cfg.Notifiers, 2)
	require.Equal(t, "mqtt", cfg.Notifiers[0].Type)
	require.Equal(t, "tempnotifier", cfg.Notifiers[0].ClientID)
	require.Equal(t, []string{"localhost:9092"}, cfg.Notifiers[1].Brokers)

	_, err = parseString(t, strings.Replace(doc, "    topic: home.notifier\n", "", 1))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "weather", cfg.Source.Measurements.Outdoor.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := parseString(t, ExampleYAML)
	require.NoError(t, err)
	_, err = cfg.Engine()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteExample("-", &buf))
	require.Equal(t, ExampleYAML, buf.String())

	path := filepath.Join(t.TempDir(), "sub", "example.yaml")
	require.NoError(t, WriteExample(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, ExampleYAML, string(data))
}
