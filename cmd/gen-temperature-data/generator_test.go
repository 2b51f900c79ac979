package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/pkg/config"
)

var day = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func collect(g *generator) []sample {
	var out []sample
	for s, ok := g.nextSample(); ok; s, ok = g.nextSample() {
		out = append(out, s)
	}
	return out
}

func TestGeneratorDiurnalCurve(t *testing.T) {
	p := profile{OutdoorMean: 18, OutdoorAmplitude: 6, IndoorMean: 22}
	samples := collect(newGenerator(p, day, day.Add(24*time.Hour), time.Hour, 1))
	require.Len(t, samples, 24)

	require.InDelta(t, 12, samples[3].outdoor, 1e-9, "minimum at 03:00")
	require.InDelta(t, 24, samples[15].outdoor, 1e-9, "maximum at 15:00")
	require.Equal(t, 22.0, samples[12].indoor)
}

func TestGeneratorIsDeterministic(t *testing.T) {
	p := profile{OutdoorMean: 18, OutdoorAmplitude: 6, IndoorMean: 22, Noise: 0.5}
	a := collect(newGenerator(p, day, day.Add(6*time.Hour), 10*time.Minute, 42))
	b := collect(newGenerator(p, day, day.Add(6*time.Hour), 10*time.Minute, 42))
	require.Equal(t, a, b)
}

func TestBumpTriggersRapidChange(t *testing.T) {
	p := profile{
		OutdoorMean: 15,
		BumpAt:      day.Add(12 * time.Hour),
		BumpRise:    4,
		BumpDrop:    2,
		BumpUp:      45 * time.Minute,
		BumpDown:    30 * time.Minute,
	}
	require.Zero(t, bump(p, day.Add(11*time.Hour)))
	require.InDelta(t, 4, bump(p, p.BumpAt.Add(45*time.Minute)), 1e-9)
	require.InDelta(t, 2, bump(p, p.BumpAt.Add(3*time.Hour)), 1e-9)

	var window []engine.WindowEntry
	for _, s := range collect(newGenerator(p, day.Add(11*time.Hour), day.Add(14*time.Hour), 5*time.Minute, 1)) {
		window = engine.UpdateWindow(window, engine.Sample{Timestamp: s.ts, Outdoor: s.outdoor}, 3*time.Hour)
	}
	require.True(t, engine.DetectRapidChange(window, 3, 1).Triggered)
}

func TestWriteLineProtocol(t *testing.T) {
	m := config.Measurements{
		Indoor:  config.Measurement{Name: "livingroom", Field: "temperature"},
		Outdoor: config.Measurement{Name: "weather", Field: "temperature"},
	}
	path := filepath.Join(t.TempDir(), "out.lp")
	gen := newGenerator(profile{OutdoorMean: 10, IndoorMean: 21}, day, day.Add(10*time.Minute), 5*time.Minute, 1)

	n, err := writeLineProtocol(path, gen, m)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "livingroom temperature=21 ")
	require.Contains(t, string(raw), "weather temperature=10 ")
	require.Equal(t, 4, strings.Count(string(raw), "temperature="))
}

func TestHistoryRows(t *testing.T) {
	m := config.Measurements{
		Indoor:  config.Measurement{Name: "livingroom", Field: "temperature"},
		Outdoor: config.Measurement{Name: "weather", Field: "temp_c"},
	}
	cols, err := valueColumns(m)
	require.NoError(t, err)
	require.Equal(t, []string{"temperature", "temp_c"}, cols)

	s := sample{ts: day, indoor: 22.5, outdoor: 17}
	rows := historyRows(s, m, cols, nil)
	require.Equal(t, [][]any{
		{day, "livingroom", 22.5, nil},
		{day, "weather", nil, 17.0},
	}, rows)

	m.Outdoor.Field = "temperature"
	cols, err = valueColumns(m)
	require.NoError(t, err)
	require.Equal(t, []string{"temperature"}, cols)
	require.Equal(t, []any{day, "weather", 17.0}, historyRows(s, m, cols, 0.0)[1])

	m.Outdoor.Field = "temp; DROP"
	_, err = valueColumns(m)
	require.Error(t, err)
}
