// Package notify доставляет сообщения о решении движка во все настроенные каналы.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/logging"
)

// Title используется как заголовок всех уведомлений.
const Title = "Temperature Alert"

// ErrDeliveryFailed оборачивает ошибку доставки одного канала.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Message описывает одно уведомление.
type Message struct {
	ID      string
	Title   string
	Body    string
	Reason  engine.Reason
	Indoor  float64
	Outdoor float64
	// Rise и Drop заполнены только для ReasonRapidChange.
	Rise float64
	Drop float64
	Time time.Time
}

// NewMessage формирует текст уведомления по причине срабатывания.
func NewMessage(id string, reason engine.Reason, s engine.Sample, rc engine.RapidChange) Message {
	msg := Message{
		ID:      id,
		Title:   Title,
		Reason:  reason,
		Indoor:  s.Indoor,
		Outdoor: s.Outdoor,
		Time:    s.Timestamp,
	}
	switch reason {
	case engine.ReasonRapidChange:
		msg.Rise = rc.Rise()
		msg.Drop = rc.Drop()
		msg.Body = fmt.Sprintf(
			"Rapid outdoor temperature change: rose by %.1f°C and dropped by %.1f°C. Outdoor %.1f°C, indoor %.1f°C.",
			msg.Rise, msg.Drop, s.Outdoor, s.Indoor)
	default:
		msg.Body = fmt.Sprintf("Outdoor temperature is lower than indoor temperature! %.1f°C < %.1f°C", s.Outdoor, s.Indoor)
	}
	return msg
}

// Payload кодирует сообщение в JSON для брокеров (MQTT, Kafka).
func Payload(msg Message) ([]byte, error) {
	p := struct {
		ID      string    `json:"id"`
		Title   string    `json:"title"`
		Body    string    `json:"body"`
		Reason  string    `json:"reason"`
		Indoor  float64   `json:"indoor"`
		Outdoor float64   `json:"outdoor"`
		Rise    *float64  `json:"rise,omitempty"`
		Drop    *float64  `json:"drop,omitempty"`
		Time    time.Time `json:"time"`
	}{
		ID:      msg.ID,
		Title:   msg.Title,
		Body:    msg.Body,
		Reason:  msg.Reason.String(),
		Indoor:  msg.Indoor,
		Outdoor: msg.Outdoor,
		Time:    msg.Time.UTC(),
	}
	if msg.Reason == engine.ReasonRapidChange {
		p.Rise, p.Drop = &msg.Rise, &msg.Drop
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode payload: %w", err)
	}
	return data, nil
}

// Notifier доставляет уведомление в один канал.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Result — итог доставки в один канал.
type Result struct {
	Notifier string
	Err      error
	Elapsed  time.Duration
}

// Fanout отправляет сообщение во все каналы по очереди. Ошибка одного канала
// не мешает остальным; результаты возвращаются в порядке notifiers.
func Fanout(ctx context.Context, notifiers []Notifier, msg Message, logger *zerolog.Logger) []Result {
	log := logging.OrNop(logger)
	results := make([]Result, 0, len(notifiers))
	for _, n := range notifiers {
		start := time.Now()
		err := n.Send(ctx, msg)
		if err != nil && !errors.Is(err, ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, n.Name(), err)
		}
		res := Result{Notifier: n.Name(), Err: err, Elapsed: time.Since(start)}
		if err != nil {
			log.Error().Err(err).Str("notifier", res.Notifier).Str("message_id", msg.ID).Msg("notification failed")
		} else {
			log.Info().Str("notifier", res.Notifier).Str("message_id", msg.ID).Dur("elapsed", res.Elapsed).Msg("notification sent")
		}
		results = append(results, res)
	}
	return results
}

// Failed объединяет ошибки неудачных доставок; nil, если все успешны.
func Failed(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// StdoutNotifier печатает уведомление одной строкой в Writer.
type StdoutNotifier struct {
	Writer io.Writer
}

func (n *StdoutNotifier) Name() string { return "stdout" }

func (n *StdoutNotifier) Send(_ context.Context, msg Message) error {
	if n.Writer == nil {
		return fmt.Errorf("stdout notifier: writer is not set")
	}
	_, err := fmt.Fprintf(n.Writer, "[%s] %s: %s (reason=%s id=%s)\n",
		msg.Time.Format(time.DateTime), msg.Title, msg.Body, msg.Reason, msg.ID)
	return err
}
