// Package engine принимает решение об уведомлении по одному измерению.
// Всё состояние передаётся явно: Evaluate не обращается ни к часам, ни к диску.
package engine

// Trace объясняет, как было принято решение. Используется только для журнала.
type Trace struct {
	NewDay      bool
	Arming      Arming
	RapidChange RapidChange
	Branch      Branch
	WindowLen   int
}

// Evaluate выполняет один цикл: окно → смена суток → взвод → поиск резкого
// изменения → правила уведомления. Возвращает новое состояние, решение и трассу.
// Входное состояние не изменяется.
func Evaluate(st State, s Sample, cfg Config) (State, Decision, Trace) {
	var tr Trace

	window := UpdateWindow(st.Window, s, cfg.Window)
	tr.WindowLen = len(window)

	daily, reset := ResetIfNewDay(st.Daily, DateOf(s.Timestamp, cfg.location()))
	tr.NewDay = reset
	if daily.Last != nil {
		last := *daily.Last
		daily.Last = &last
	}

	tr.Arming = EvaluateArming(s.Indoor, s.Outdoor, s.Timestamp, cfg, daily)
	daily.Armed = tr.Arming.Armed

	tr.RapidChange = DetectRapidChange(window, cfg.Rise, cfg.Drop)

	daily, decision, branch := Gate(daily, s, tr.RapidChange.Triggered, cfg)
	tr.Branch = branch

	return State{Daily: daily, Window: window}, decision, tr
}
