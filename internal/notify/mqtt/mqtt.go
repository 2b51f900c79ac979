// Package mqtt публикует уведомления в топик MQTT-брокера (paho, MQTT 3.1.1).
package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/notify"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retain   bool
	Timeout  time.Duration
	Logger   *zerolog.Logger
}

// Notifier подключается к брокеру на время каждой отправки.
type Notifier struct {
	cfg       Config
	log       *zerolog.Logger
	newClient func(*paho.ClientOptions) paho.Client
}

func New(cfg Config) (*Notifier, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt: topic is empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tempnotifier"
	}
	return &Notifier{cfg: cfg, log: logging.OrNop(cfg.Logger), newClient: paho.NewClient}, nil
}

func (n *Notifier) Name() string { return "mqtt" }

func (n *Notifier) Send(ctx context.Context, msg notify.Message) error {
	payload, err := notify.Payload(msg)
	if err != nil {
		return err
	}

	timeout := n.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	opts := paho.NewClientOptions().
		AddBroker(n.cfg.Broker).
		// брокер разрывает прежнюю сессию с тем же client_id
		SetClientID(n.cfg.ClientID + "-" + uuid.NewString()[:8]).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(timeout)
	if n.cfg.Username != "" {
		opts.SetUsername(n.cfg.Username)
		opts.SetPassword(n.cfg.Password)
	}
	client := n.newClient(opts)

	if err := wait(ctx, client.Connect(), timeout); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", n.cfg.Broker, err)
	}
	defer client.Disconnect(250)

	if err := wait(ctx, client.Publish(n.cfg.Topic, n.cfg.QoS, n.cfg.Retain, payload), timeout); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", n.cfg.Topic, err)
	}
	n.log.Debug().Str("topic", n.cfg.Topic).Uint8("qos", n.cfg.QoS).Int("bytes", len(payload)).Msg("mqtt message published")
	return nil
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}
