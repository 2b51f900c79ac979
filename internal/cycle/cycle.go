// Package cycle выполняет один цикл: загрузка состояния, чтение датчиков,
// решение движка, рассылка и сохранение.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/notify"
	"github.com/pv/temperature-notifier-go/internal/source"
	"github.com/pv/temperature-notifier-go/internal/state"
)

// ErrStateLoad: состояние не удалось прочитать, цикл не выполняется.
var ErrStateLoad = errors.New("cycle: state load failed")

// Service связывает источник, движок, каналы уведомлений и хранилище.
type Service struct {
	Source    source.Source
	State     state.Store
	Notifiers []notify.Notifier
	Engine    engine.Config

	// MaxSampleAge > 0 отбраковывает устаревшие показания.
	MaxSampleAge time.Duration
	// DryRun: решение принимается и пишется в журнал, но не рассылается и не сохраняется.
	DryRun bool

	Now    func() time.Time
	NewID  func() string
	Logger *zerolog.Logger
}

// Outcome — итог цикла.
type Outcome struct {
	RunID    string
	Sample   engine.Sample
	Decision engine.Decision
	Trace    engine.Trace
	Message  *notify.Message
	Results  []notify.Result
	Saved    bool
	// SaveErr не прерывает цикл: решение уже принято и разослано.
	SaveErr error
}

// Run выполняет один цикл. Ошибка возвращается только если решение не было
// принято: не прочитано состояние (ErrStateLoad) или нет данных
// (source.ErrDataUnavailable, в том числе NaN и ±Inf). Новое состояние
// сохраняется до рассылки. Сбои доставки и сохранения отражены в Outcome.
func (s *Service) Run(ctx context.Context) (Outcome, error) {
	if s.Source == nil || s.State == nil {
		return Outcome{}, fmt.Errorf("cycle: source and state must be set")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	newID := uuid.NewString
	if s.NewID != nil {
		newID = s.NewID
	}

	out := Outcome{RunID: newID()}
	logger := logging.OrNop(s.Logger).With().Str("run_id", out.RunID).Logger()
	log := &logger

	st, err := s.State.Load(ctx)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrStateLoad, err)
	}
	log.Debug().
		Str("date", st.Daily.Date.String()).
		Bool("armed", st.Daily.Armed).
		Bool("notified", st.Daily.Notified).
		Bool("rapid_change_notified", st.Daily.RapidChangeNotified).
		Int("window", len(st.Window)).
		Msg("state loaded")

	reading, err := s.Source.FetchLatest(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch temperatures, cycle aborted")
		return out, err
	}
	if err := source.CheckFinite(reading); err != nil {
		log.Error().Err(err).Msg("invalid temperatures, cycle aborted")
		return out, err
	}
	stamp := now()
	if err := source.CheckFreshness(reading, stamp, s.MaxSampleAge); err != nil {
		log.Error().Err(err).Msg("stale temperatures, cycle aborted")
		return out, err
	}
	out.Sample = engine.Sample{Timestamp: stamp, Indoor: reading.Indoor, Outdoor: reading.Outdoor}
	log.Info().
		Float64("indoor", reading.Indoor).
		Float64("outdoor", reading.Outdoor).
		Time("indoor_at", reading.IndoorAt).
		Time("outdoor_at", reading.OutdoorAt).
		Msg("temperatures fetched")

	next, decision, trace := engine.Evaluate(st, out.Sample, s.Engine)
	out.Decision, out.Trace = decision, trace
	logTrace(log, st, next, out.Sample, decision, trace, s.Engine)

	if decision.Fire {
		msg := notify.NewMessage(out.RunID, decision.Reason, out.Sample, trace.RapidChange)
		out.Message = &msg
	}

	if s.DryRun {
		if out.Message != nil {
			log.Info().Str("reason", decision.Reason.String()).Str("body", out.Message.Body).Msg("dry run: notification not sent")
		}
		log.Info().Msg("dry run: state not saved")
		return out, nil
	}

	// до рассылки: уведомление уходит не более одного раза
	if err := s.State.Save(ctx, next); err != nil {
		out.SaveErr = err
		log.Error().Err(err).Msg("failed to save state")
	} else {
		out.Saved = true
		log.Debug().Msg("state saved")
	}

	if out.Message != nil {
		out.Results = notify.Fanout(ctx, s.Notifiers, *out.Message, log)
	}
	return out, nil
}

// logTrace пишет пошаговое объяснение решения.
func logTrace(log *zerolog.Logger, prev, next engine.State, s engine.Sample, d engine.Decision, tr engine.Trace, cfg engine.Config) {
	if tr.NewDay {
		log.Info().Str("date", next.Daily.Date.String()).Str("previous", prev.Daily.Date.String()).Msg("new day, daily flags reset")
	}

	ev := log.Info().Bool("armed", tr.Arming.Armed)
	switch {
	case tr.Arming.Already:
		ev = ev.Str("by", "earlier today")
	case tr.Arming.ByDelta && tr.Arming.ByTime:
		ev = ev.Str("by", "delta,time")
	case tr.Arming.ByDelta:
		ev = ev.Str("by", "delta")
	case tr.Arming.ByTime:
		ev = ev.Str("by", "time")
	}
	ev.Msg("arming evaluated")

	rc := tr.RapidChange
	if rc.Triggered {
		log.Info().
			Float64("low", rc.Low).Float64("peak", rc.Peak).Float64("after", rc.After).
			Float64("rise", rc.Rise()).Float64("drop", rc.Drop()).
			Bool("already_notified", prev.Daily.RapidChangeNotified && !tr.NewDay).
			Msg("rapid change detected")
	} else {
		log.Debug().Int("window", tr.WindowLen).Msg("no rapid change")
	}

	ev = log.Info().Str("branch", tr.Branch.String()).Bool("fire", d.Fire)
	if d.Fire {
		ev = ev.Str("reason", d.Reason.String())
	}
	switch tr.Branch {
	case engine.BranchIndoorTooCold:
		ev = ev.Float64("indoor", s.Indoor).Float64("min_indoor", cfg.MinIndoorTemperature)
	case engine.BranchCooldown:
		ev = ev.Dur("cooldown_left", engine.CooldownLeft(next.Daily.Last, s.Timestamp, cfg.Cooldown))
	case engine.BranchInsufficientRise:
		if last := next.Daily.Last; last != nil {
			ev = ev.Float64("rise_since_last", s.Indoor-last.Indoor).Float64("min_rise", cfg.MinRiseBetweenNotifications)
		}
	}
	ev.Msg("decision")
}
