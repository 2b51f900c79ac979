package state

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/engine"
)

func sampleState() engine.State {
	at := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)
	return engine.State{
		Daily: engine.DailyState{
			Date:                engine.Date{Year: 2024, Month: time.June, Day: 1},
			Armed:               true,
			Notified:            true,
			RapidChangeNotified: false,
			Last:                &engine.LastNotification{Time: at, Indoor: 22.5},
		},
		Window: []engine.WindowEntry{
			{Timestamp: at.Add(-20 * time.Minute), Outdoor: 17},
			{Timestamp: at.Add(-10 * time.Minute), Outdoor: 18.5},
			{Timestamp: at, Outdoor: 19},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	st := sampleState()
	data, err := Encode(st, time.Date(2024, 6, 1, 18, 31, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Contains(t, string(data), `"date": "2024-06-01"`)
	require.Contains(t, string(data), `"last_notification_indoor_temp": 22.5`)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, st.Daily.Date, got.Daily.Date)
	require.True(t, got.Daily.Armed)
	require.True(t, got.Daily.Notified)
	require.False(t, got.Daily.RapidChangeNotified)
	require.NotNil(t, got.Daily.Last)
	require.True(t, st.Daily.Last.Time.Equal(got.Daily.Last.Time))
	require.Len(t, got.Window, 3)
	require.Equal(t, 19.0, got.Window[2].Outdoor)
}

func TestEncodeFreshState(t *testing.T) {
	data, err := Encode(engine.NewState(), time.Now())
	require.NoError(t, err)
	require.Contains(t, string(data), `"rolling_window": []`)

	got, err := Decode(data)
	require.NoError(t, err)
	require.True(t, got.Daily.Date.IsZero())
	require.Nil(t, got.Daily.Last)
	require.Empty(t, got.Window)
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	st := engine.State{Window: []engine.WindowEntry{{Timestamp: time.Now(), Outdoor: math.NaN()}}}
	_, err := Encode(st, time.Now())
	require.ErrorContains(t, err, "not finite")
}

func TestDecodeSortsWindow(t *testing.T) {
	raw := `{"version":1,"rolling_window":[
		{"time":"2024-06-01T18:20:00Z","temperature":2},
		{"time":"2024-06-01T18:00:00Z","temperature":1}]}`
	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, []float64{got.Window[0].Outdoor, got.Window[1].Outdoor})
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{oops"},
		{name: "future version", raw: `{"version":99}`},
		{name: "bad date", raw: `{"version":1,"date":"01.06.2024"}`},
		{name: "half last notification", raw: `{"version":1,"last_notification_time":"2024-06-01T18:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecodeOrFreshWarns(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	st := DecodeOrFresh([]byte("garbage"), "test", &log)
	require.Equal(t, engine.NewState(), st)
	require.Contains(t, buf.String(), "state document is corrupt")
}

func TestInstanceKey(t *testing.T) {
	require.Equal(t, InstanceKey("default"), InstanceKey("default"))
	require.NotEqual(t, InstanceKey("default"), InstanceKey("garage"))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "notifier_state.json")
	store, err := NewFileStore("file://"+path, nil)
	require.NoError(t, err)
	require.Equal(t, path, store.Path())

	st, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.NewState(), st)

	require.NoError(t, store.Save(ctx, sampleState()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.Daily.Notified)
	require.Len(t, got.Window, 3)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must not remain")
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	store, err := NewFileStore(path, &log)
	require.NoError(t, err)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, engine.NewState(), st)
	require.Contains(t, buf.String(), "corrupt")
}

func TestFileStoreReadError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrPersistence)
}

func TestIsFile(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"notifier_state.json", true},
		{"/var/lib/notifier/state.json", true},
		{"file:///tmp/state.json", true},
		{"state.db", false},
		{"sqlite:///tmp/state.db", false},
		{"redis://localhost:6379/0", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsFile(tt.dsn); got != tt.want {
			t.Errorf("IsFile(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	st, err := m.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.NewState(), st)

	require.NoError(t, m.Save(ctx, sampleState()))
	require.Equal(t, 1, m.Saves())
	require.Contains(t, string(m.Raw()), `"armed": true`)

	m.Fail(errors.New("disk full"))
	require.ErrorIs(t, m.Save(ctx, sampleState()), ErrPersistence)
	_, err = m.Load(ctx)
	require.ErrorIs(t, err, ErrPersistence)

	require.True(t, IsMemory("memory://"))
	require.False(t, IsMemory("state.json"))
}
