package engine

import (
	"sort"
	"time"
)

// UpdateWindow добавляет уличную температуру сэмпла в окно и вытесняет точки
// старше самой новой точки минус span. Входной срез не изменяется.
func UpdateWindow(entries []WindowEntry, s Sample, span time.Duration) []WindowEntry {
	out := make([]WindowEntry, 0, len(entries)+1)
	out = append(out, entries...)

	entry := WindowEntry{Timestamp: s.Timestamp, Outdoor: s.Outdoor}
	// Порядок по времени сохраняется даже если часы ушли назад.
	idx := sort.Search(len(out), func(i int) bool {
		return out[i].Timestamp.After(entry.Timestamp)
	})
	out = append(out, WindowEntry{})
	copy(out[idx+1:], out[idx:])
	out[idx] = entry

	cutoff := out[len(out)-1].Timestamp.Add(-span)
	first := 0
	for first < len(out) && out[first].Timestamp.Before(cutoff) {
		first++
	}
	return out[first:]
}

// NormalizeWindow сортирует восстановленные из хранилища точки по времени.
func NormalizeWindow(entries []WindowEntry) []WindowEntry {
	out := append([]WindowEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
