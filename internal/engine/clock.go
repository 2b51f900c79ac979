package engine

import (
	"fmt"
	"time"
)

// Date — календарная дата без времени и зоны.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf возвращает локальную дату момента t в зоне loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate разбирает дату в формате 2006-01-02.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("engine: parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// TimeOfDay хранит минуты от локальной полуночи.
type TimeOfDay int

// TimeOfDayOf извлекает локальное время суток (часы:минуты) момента t.
func TimeOfDayOf(t time.Time, loc *time.Location) TimeOfDay {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return TimeOfDay(local.Hour()*60 + local.Minute())
}

// ParseTimeOfDay разбирает строку "HH:MM" (24 часа).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("engine: invalid time of day %q, expected HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("engine: invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}
