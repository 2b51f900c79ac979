// Package memstore отдаёт фиксированные показания для тестов и демонстраций.
package memstore

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pv/temperature-notifier-go/internal/source"
)

// Store возвращает заданное показание. Если Err != nil, возвращает ошибку
// недоступности данных.
type Store struct {
	mu      sync.Mutex
	reading source.Reading
	err     error
	calls   int
}

// New создаёт источник с постоянным показанием.
func New(indoor, outdoor float64, at time.Time) *Store {
	return &Store{reading: source.Reading{Indoor: indoor, Outdoor: outdoor, IndoorAt: at, OutdoorAt: at}}
}

// Set заменяет показание.
func (s *Store) Set(r source.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
	s.err = nil
}

// Fail заставляет следующие вызовы FetchLatest возвращать ошибку.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls возвращает число вызовов FetchLatest.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FetchLatest возвращает текущее показание.
func (s *Store) FetchLatest(ctx context.Context) (source.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return source.Reading{}, source.Unavailable("memstore: %v", err)
	}
	if s.err != nil {
		return source.Reading{}, fmt.Errorf("%w: memstore: %w", source.ErrDataUnavailable, s.err)
	}
	return s.reading, nil
}

// IsSource проверяет схему memstore://.
func IsSource(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(dsn), "memstore://")
}

// FromDSN разбирает memstore://?indoor=22.5&outdoor=19. Время измерения равно now.
func FromDSN(dsn string, now time.Time) (*Store, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("memstore: parse DSN: %w", err)
	}
	q := u.Query()
	indoor, err := parseValue(q, "indoor")
	if err != nil {
		return nil, err
	}
	outdoor, err := parseValue(q, "outdoor")
	if err != nil {
		return nil, err
	}
	return New(indoor, outdoor, now), nil
}

func parseValue(q url.Values, key string) (float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, fmt.Errorf("memstore: %s is not set", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("memstore: %s: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("memstore: %s: %v is not a finite number", key, v)
	}
	return v, nil
}
