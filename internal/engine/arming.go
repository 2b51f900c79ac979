package engine

import "time"

// Arming описывает итог проверки взвода.
type Arming struct {
	Armed   bool
	Already bool // был взведён раньше в эти сутки
	ByDelta bool // outdoor >= indoor + temperature_delta
	ByTime  bool // локальное время >= arming_time
}

// EvaluateArming решает, взведена ли система. Взвод монотонен в пределах суток:
// если daily.Armed уже true, результат всегда Armed.
func EvaluateArming(indoor, outdoor float64, now time.Time, cfg Config, daily DailyState) Arming {
	var res Arming
	if cfg.TemperatureDelta != nil {
		res.ByDelta = outdoor >= indoor+*cfg.TemperatureDelta
	}
	if cfg.ArmingTime != nil {
		res.ByTime = TimeOfDayOf(now, cfg.location()) >= *cfg.ArmingTime
	}
	res.Already = daily.Armed
	res.Armed = daily.Armed || res.ByDelta || res.ByTime
	return res
}
