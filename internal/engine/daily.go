package engine

// ResetIfNewDay сбрасывает суточные флаги, если сохранённая дата отличается от today.
// Повторный вызов с той же датой ничего не меняет.
func ResetIfNewDay(d DailyState, today Date) (DailyState, bool) {
	if d.Date == today {
		return d, false
	}
	return DailyState{Date: today}, true
}
