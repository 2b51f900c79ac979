// Package state хранит состояние движка между запусками.
//
// Все хранилища записывают один и тот же JSON-документ (см. Encode/Decode),
// различается только место: файл, SQLite, PostgreSQL, Redis или память.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/city"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
)

// FormatVersion — версия формата документа состояния.
const FormatVersion = 1

var (
	// ErrPersistence оборачивает любые ошибки чтения и записи хранилища.
	ErrPersistence = errors.New("state: persistence failed")
	// ErrCorrupt: сохранённый документ не удалось разобрать.
	ErrCorrupt = errors.New("state: corrupt document")
)

// Store загружает и сохраняет состояние одного экземпляра.
// Отсутствие записи не является ошибкой: Load возвращает engine.NewState().
type Store interface {
	Load(ctx context.Context) (engine.State, error)
	Save(ctx context.Context, st engine.State) error
}

// InstanceKey вычисляет cityhash64 от имени экземпляра. Ключ позволяет
// нескольким экземплярам делить одну таблицу.
func InstanceKey(name string) int64 {
	return int64(city.Hash64([]byte(name)))
}

type document struct {
	Version                    int           `json:"version"`
	Date                       string        `json:"date,omitempty"`
	Armed                      bool          `json:"armed"`
	Notified                   bool          `json:"notified"`
	RapidChangeNotified        bool          `json:"rapid_change_notified"`
	LastNotificationTime       *time.Time    `json:"last_notification_time"`
	LastNotificationIndoorTemp *float64      `json:"last_notification_indoor_temp"`
	RollingWindow              []windowEntry `json:"rolling_window"`
	SavedAt                    time.Time     `json:"saved_at"`
}

type windowEntry struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
}

// Encode сериализует состояние. savedAt пишется в документ для диагностики.
func Encode(st engine.State, savedAt time.Time) ([]byte, error) {
	doc := document{
		Version:             FormatVersion,
		Date:                st.Daily.Date.String(),
		Armed:               st.Daily.Armed,
		Notified:            st.Daily.Notified,
		RapidChangeNotified: st.Daily.RapidChangeNotified,
		RollingWindow:       make([]windowEntry, 0, len(st.Window)),
		SavedAt:             savedAt,
	}
	if last := st.Daily.Last; last != nil {
		t := last.Time
		indoor := last.Indoor
		doc.LastNotificationTime = &t
		doc.LastNotificationIndoorTemp = &indoor
	}
	for _, e := range st.Window {
		if math.IsNaN(e.Outdoor) || math.IsInf(e.Outdoor, 0) {
			return nil, fmt.Errorf("state: encode: window value at %s is not finite", e.Timestamp.Format(time.RFC3339))
		}
		doc.RollingWindow = append(doc.RollingWindow, windowEntry{Time: e.Timestamp, Temperature: e.Outdoor})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("state: encode: %w", err)
	}
	return data, nil
}

// Decode восстанавливает состояние. Ошибки формата оборачивают ErrCorrupt.
func Decode(data []byte) (engine.State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return engine.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc.Version > FormatVersion {
		return engine.State{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}

	st := engine.NewState()
	if doc.Date != "" {
		d, err := engine.ParseDate(doc.Date)
		if err != nil {
			return engine.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		st.Daily.Date = d
	}
	st.Daily.Armed = doc.Armed
	st.Daily.Notified = doc.Notified
	st.Daily.RapidChangeNotified = doc.RapidChangeNotified

	switch {
	case doc.LastNotificationTime != nil && doc.LastNotificationIndoorTemp != nil:
		st.Daily.Last = &engine.LastNotification{
			Time:   *doc.LastNotificationTime,
			Indoor: *doc.LastNotificationIndoorTemp,
		}
	case doc.LastNotificationTime != nil || doc.LastNotificationIndoorTemp != nil:
		return engine.State{}, fmt.Errorf("%w: last_notification_time and last_notification_indoor_temp must be set together", ErrCorrupt)
	}

	if len(doc.RollingWindow) > 0 {
		window := make([]engine.WindowEntry, 0, len(doc.RollingWindow))
		for _, e := range doc.RollingWindow {
			window = append(window, engine.WindowEntry{Timestamp: e.Time, Outdoor: e.Temperature})
		}
		st.Window = engine.NormalizeWindow(window)
	}
	return st, nil
}

// DecodeOrFresh разбирает документ; повреждённый документ заменяется новым
// состоянием с предупреждением в журнале.
func DecodeOrFresh(data []byte, where string, log *zerolog.Logger) engine.State {
	st, err := Decode(data)
	if err != nil {
		logging.OrNop(log).Warn().Err(err).Str("store", where).Msg("state document is corrupt, starting with fresh state")
		return engine.NewState()
	}
	return st
}

// Fail оборачивает ошибку хранилища в ErrPersistence.
func Fail(backend, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrPersistence, backend, op, err)
}
