package engine

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sample — пара показаний (помещение/улица) на момент оценки.
type Sample struct {
	Timestamp time.Time
	Indoor    float64
	Outdoor   float64
}

// WindowEntry хранит одну точку уличной температуры в скользящем окне.
type WindowEntry struct {
	Timestamp time.Time
	Outdoor   float64
}

// LastNotification хранит момент и температуру в помещении при последнем уведомлении.
type LastNotification struct {
	Time   time.Time
	Indoor float64
}

// DailyState — флаги текущих суток. Сбрасываются только в ResetIfNewDay.
type DailyState struct {
	Date                Date
	Armed               bool
	Notified            bool
	RapidChangeNotified bool
	Last                *LastNotification // nil, если сегодня уведомлений не было
}

// State переживает запуск процесса: суточные флаги и окно.
type State struct {
	Daily  DailyState
	Window []WindowEntry
}

// NewState возвращает состояние первого запуска.
func NewState() State {
	return State{}
}

// Reason — причина срабатывания.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPrimary
	ReasonRapidChange
)

func (r Reason) String() string {
	switch r {
	case ReasonPrimary:
		return "primary"
	case ReasonRapidChange:
		return "rapid_change"
	default:
		return "none"
	}
}

// Decision описывает результат одного цикла.
type Decision struct {
	Fire   bool
	Reason Reason
}

// Config — пороги движка. Значения неизменны в пределах запуска.
type Config struct {
	MinIndoorTemperature        float64
	Rise                        float64
	Drop                        float64
	Window                      time.Duration
	Cooldown                    time.Duration
	MinRiseBetweenNotifications float64
	// TemperatureDelta == nil отключает взвод по разнице температур.
	TemperatureDelta *float64
	// ArmingTime == nil отключает взвод по времени суток.
	ArmingTime *TimeOfDay
	// Location задаёт локальное время для смены суток и ArmingTime; nil означает time.Local.
	Location *time.Location
}

// ErrInvalidConfig возвращается Config.Validate.
var ErrInvalidConfig = errors.New("engine: invalid config")

// Validate проверяет инварианты порогов.
func (c Config) Validate() error {
	finite := map[string]float64{
		"min_indoor_temperature":         c.MinIndoorTemperature,
		"rise":                           c.Rise,
		"drop":                           c.Drop,
		"min_rise_between_notifications": c.MinRiseBetweenNotifications,
	}
	if c.TemperatureDelta != nil {
		finite["temperature_delta"] = *c.TemperatureDelta
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfig, name)
		}
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0", ErrInvalidConfig)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("%w: cooldown must be > 0", ErrInvalidConfig)
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
