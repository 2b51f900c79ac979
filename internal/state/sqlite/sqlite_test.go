package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/state"
)

func openStore(t *testing.T, path, name string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{Source: "sqlite://" + path, Name: name})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store := openStore(t, path, "default")

	st, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.NewState(), st)

	at := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	want := engine.State{
		Daily: engine.DailyState{
			Date:     engine.Date{Year: 2024, Month: time.June, Day: 1},
			Armed:    true,
			Notified: true,
			Last:     &engine.LastNotification{Time: at, Indoor: 23},
		},
		Window: []engine.WindowEntry{{Timestamp: at, Outdoor: 20}},
	}
	require.NoError(t, store.Save(ctx, want))

	// повторное сохранение обновляет ту же строку
	want.Daily.RapidChangeNotified = true
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.Daily.RapidChangeNotified)
	require.Equal(t, 23.0, got.Daily.Last.Indoor)
	require.Len(t, got.Window, 1)

	var rows int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifier_state").Scan(&rows))
	require.Equal(t, 1, rows)
}

func TestStoreInstancesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a := openStore(t, path, "livingroom")
	b := openStore(t, path, "bedroom")

	require.NoError(t, a.Save(ctx, engine.State{Daily: engine.DailyState{Armed: true}}))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	require.False(t, got.Daily.Armed)

	got, err = a.Load(ctx)
	require.NoError(t, err)
	require.True(t, got.Daily.Armed)
}

func TestStoreCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "state.db"), "default")
	_, err := store.db.ExecContext(ctx, saveSQL, state.InstanceKey("default"), "default", "{broken", "now")
	require.NoError(t, err)

	st, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.NewState(), st)
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), Config{Name: "x"})
	require.ErrorContains(t, err, "database path is empty")
	_, err = New(context.Background(), Config{Source: ":memory:"})
	require.ErrorContains(t, err, "instance name is empty")
}

func TestIsSource(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"sqlite:///var/lib/state.db", true},
		{"state.db", true},
		{"state.SQLITE", true},
		{":memory:", true},
		{"state.json", false},
		{"postgres://localhost/db", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSource(tt.src); got != tt.want {
			t.Errorf("IsSource(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
	if got := NormalizeSource("sqlite:///tmp/a.db"); got != "/tmp/a.db" {
		t.Errorf("NormalizeSource = %q", got)
	}
}
