// Package kafka публикует уведомления в топик Kafka (segmentio/kafka-go).
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/notify"
)

type Config struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
	Logger  *zerolog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier пишет сообщение с ключом, равным причине срабатывания.
type Notifier struct {
	w     messageWriter
	topic string
	log   *zerolog.Logger
}

func New(cfg Config) (*Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
		MaxAttempts:  1,
		WriteTimeout: timeout,
		ReadTimeout:  timeout,
	}
	return newNotifier(w, cfg.Topic, cfg.Logger), nil
}

func newNotifier(w messageWriter, topic string, logger *zerolog.Logger) *Notifier {
	return &Notifier{w: w, topic: topic, log: logging.OrNop(logger)}
}

func (n *Notifier) Name() string { return "kafka" }

func (n *Notifier) Send(ctx context.Context, msg notify.Message) error {
	payload, err := notify.Payload(msg)
	if err != nil {
		return err
	}
	km := kafkago.Message{
		Key:   []byte(msg.Reason.String()),
		Value: payload,
		Time:  msg.Time,
		Headers: []kafkago.Header{
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	}
	if err := n.w.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka: write %s: %w", n.topic, err)
	}
	n.log.Debug().Str("topic", n.topic).Str("key", string(km.Key)).Msg("kafka message written")
	return nil
}

// Close закрывает writer и сбрасывает буферы.
func (n *Notifier) Close() error {
	if err := n.w.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	return nil
}
