package engine

import "time"

// Branch указывает ветку правила, которая определила решение цикла.
type Branch int

const (
	BranchNone Branch = iota
	BranchIndoorTooCold
	BranchRapidChange
	BranchPrimary
	BranchReenabled
	BranchCooldown
	BranchInsufficientRise
	BranchNotArmed
	BranchOutdoorNotCooler
)

func (b Branch) String() string {
	switch b {
	case BranchIndoorTooCold:
		return "indoor_too_cold"
	case BranchRapidChange:
		return "rapid_change"
	case BranchPrimary:
		return "primary"
	case BranchReenabled:
		return "reenabled"
	case BranchCooldown:
		return "cooldown"
	case BranchInsufficientRise:
		return "insufficient_rise"
	case BranchNotArmed:
		return "not_armed"
	case BranchOutdoorNotCooler:
		return "outdoor_not_cooler"
	default:
		return "none"
	}
}

// Gate применяет правила уведомления по порядку; срабатывает первая подходящая ветка.
// daily.Armed должен быть уже обновлён EvaluateArming.
func Gate(daily DailyState, s Sample, rapid bool, cfg Config) (DailyState, Decision, Branch) {
	if s.Indoor < cfg.MinIndoorTemperature {
		return daily, Decision{}, BranchIndoorTooCold
	}

	if rapid && !daily.RapidChangeNotified {
		daily.RapidChangeNotified = true
		daily.Last = &LastNotification{Time: s.Timestamp, Indoor: s.Indoor}
		return daily, Decision{Fire: true, Reason: ReasonRapidChange}, BranchRapidChange
	}

	if !daily.Armed {
		return daily, Decision{}, BranchNotArmed
	}
	if !(s.Outdoor < s.Indoor) {
		return daily, Decision{}, BranchOutdoorNotCooler
	}

	if !daily.Notified {
		daily.Notified = true
		daily.Last = &LastNotification{Time: s.Timestamp, Indoor: s.Indoor}
		return daily, Decision{Fire: true, Reason: ReasonPrimary}, BranchPrimary
	}

	if branch := reenableBlock(daily.Last, s, cfg); branch != BranchNone {
		return daily, Decision{}, branch
	}
	daily.Last = &LastNotification{Time: s.Timestamp, Indoor: s.Indoor}
	return daily, Decision{Fire: true, Reason: ReasonPrimary}, BranchReenabled
}

// reenableBlock возвращает ветку, запрещающую повтор, либо BranchNone.
// Без данных о прошлом уведомлении повтор разрешён: сравнивать не с чем.
func reenableBlock(last *LastNotification, s Sample, cfg Config) Branch {
	if last == nil {
		return BranchNone
	}
	if s.Timestamp.Sub(last.Time) < cfg.Cooldown {
		return BranchCooldown
	}
	if s.Indoor-last.Indoor < cfg.MinRiseBetweenNotifications {
		return BranchInsufficientRise
	}
	return BranchNone
}

// CooldownLeft возвращает остаток паузы после последнего уведомления (для журнала).
func CooldownLeft(last *LastNotification, now time.Time, cooldown time.Duration) time.Duration {
	if last == nil {
		return 0
	}
	left := cooldown - now.Sub(last.Time)
	if left < 0 {
		return 0
	}
	return left
}
