// Package source описывает получение последних показаний температуры.
// Конкретные хранилища живут во вложенных пакетах (influxdb, clickhouse, postgres, memstore).
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// ErrDataUnavailable: показание отсутствует или запрос к хранилищу не удался.
var ErrDataUnavailable = errors.New("source: data unavailable")

// ErrNoRows — ряд пуст.
var ErrNoRows = errors.New("no rows")

// Measurement задаёт имя ряда (measurement/sensor) и поле со значением.
type Measurement struct {
	Name  string
	Field string
}

// Reading содержит последние показания в помещении и на улице с моментами измерения.
type Reading struct {
	Indoor    float64
	Outdoor   float64
	IndoorAt  time.Time
	OutdoorAt time.Time
}

// Source возвращает последние показания.
type Source interface {
	FetchLatest(ctx context.Context) (Reading, error)
}

// Point хранит последнее значение ряда.
type Point struct {
	Time  time.Time
	Value float64
}

// LatestFunc читает последнее значение одного ряда.
type LatestFunc func(ctx context.Context, m Measurement) (Point, error)

// FetchPair читает оба ряда через latest и собирает Reading.
// Любая ошибка оборачивается в ErrDataUnavailable.
func FetchPair(ctx context.Context, indoor, outdoor Measurement, latest LatestFunc) (Reading, error) {
	in, err := latest(ctx, indoor)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: indoor %s.%s: %w", ErrDataUnavailable, indoor.Name, indoor.Field, err)
	}
	out, err := latest(ctx, outdoor)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: outdoor %s.%s: %w", ErrDataUnavailable, outdoor.Name, outdoor.Field, err)
	}
	r := Reading{
		Indoor:    in.Value,
		Outdoor:   out.Value,
		IndoorAt:  in.Time,
		OutdoorAt: out.Time,
	}
	if err := CheckFinite(r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// CheckFinite считает NaN и ±Inf отсутствующим показанием.
func CheckFinite(r Reading) error {
	for _, v := range []struct {
		name  string
		value float64
	}{{"indoor", r.Indoor}, {"outdoor", r.Outdoor}} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return Unavailable("%s reading is not a finite number: %v", v.name, v.value)
		}
	}
	return nil
}

// Unavailable создаёт ошибку, оборачивающую ErrDataUnavailable.
func Unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataUnavailable, fmt.Sprintf(format, args...))
}

// CheckFreshness проверяет, что оба показания не старше maxAge относительно now.
// maxAge <= 0 отключает проверку; нулевое время измерения не проверяется.
func CheckFreshness(r Reading, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	for _, p := range []struct {
		name string
		at   time.Time
	}{{"indoor", r.IndoorAt}, {"outdoor", r.OutdoorAt}} {
		if p.at.IsZero() {
			continue
		}
		if age := now.Sub(p.at); age > maxAge {
			return Unavailable("%s reading is stale: measured %s ago (max %s)", p.name, age.Truncate(time.Second), maxAge)
		}
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckIdentifier проверяет, что имя столбца можно подставить в SQL без кавычек.
func CheckIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// CheckTable допускает имя таблицы вида table или schema.table.
func CheckTable(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return fmt.Errorf("invalid table %q", name)
	}
	for _, p := range parts {
		if err := CheckIdentifier(p); err != nil {
			return fmt.Errorf("invalid table %q", name)
		}
	}
	return nil
}
