package engine

import "time"

// minRapidEntries: меньше трёх точек не дают подъёма и спада одновременно.
const minRapidEntries = 3

// RapidChange — результат поиска «подъём, затем спад» в окне.
type RapidChange struct {
	Triggered bool
	Low       float64   // минимум перед пиком
	Peak      float64   // пик, от которого отсчитан спад
	After     float64   // значение, на котором спад достиг порога
	At        time.Time // момент этого значения
}

// Rise возвращает величину подъёма от минимума до пика.
func (r RapidChange) Rise() float64 { return r.Peak - r.Low }

// Drop возвращает величину спада от пика.
func (r RapidChange) Drop() float64 { return r.Peak - r.After }

// DetectRapidChange проходит окно слева направо одним проходом.
// Состояние свёртки: текущий минимум, максимум после него и лучший пик,
// уже набравший подъём rise. Срабатывает первое значение, опустившееся
// от такого пика на drop и больше.
func DetectRapidChange(window []WindowEntry, rise, drop float64) RapidChange {
	if len(window) < minRapidEntries {
		return RapidChange{}
	}

	runningMin := window[0].Outdoor
	maxAfterMin := window[0].Outdoor
	var (
		hasCandidate bool
		peak, low    float64
	)

	for _, e := range window[1:] {
		v := e.Outdoor
		if hasCandidate && peak-v >= drop {
			return RapidChange{Triggered: true, Low: low, Peak: peak, After: v, At: e.Timestamp}
		}

		if v < runningMin {
			runningMin = v
			maxAfterMin = v
			continue
		}
		if v > maxAfterMin {
			maxAfterMin = v
		}
		if maxAfterMin-runningMin >= rise && (!hasCandidate || maxAfterMin > peak) {
			hasCandidate = true
			peak = maxAfterMin
			low = runningMin
		}
	}
	return RapidChange{}
}
