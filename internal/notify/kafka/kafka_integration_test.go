//go:build integration

package kafka

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/engine"
	"github.com/pv/temperature-notifier-go/internal/notify"
)

// Requires KAFKA_TEST_BROKERS env var (comma separated host:port).
func TestIntegrationSend(t *testing.T) {
	raw := os.Getenv("KAFKA_TEST_BROKERS")
	if raw == "" {
		t.Skip("KAFKA_TEST_BROKERS is not set; skipping integration test")
	}
	brokers := strings.Split(raw, ",")
	topic := "tempnotifier-it"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := kafkago.DialContext(ctx, "tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	conn.Close()

	n, err := New(Config{Brokers: brokers, Topic: topic})
	require.NoError(t, err)
	defer n.Close()

	id := "it-" + time.Now().Format("150405.000000")
	msg := notify.NewMessage(id, engine.ReasonPrimary, engine.Sample{Timestamp: time.Now(), Indoor: 22, Outdoor: 19}, engine.RapidChange{})
	require.NoError(t, n.Send(ctx, msg))

	r := kafkago.NewReader(kafkago.ReaderConfig{Brokers: brokers, Topic: topic, MaxWait: 500 * time.Millisecond})
	defer r.Close()
	require.NoError(t, r.SetOffset(kafkago.FirstOffset))
	for {
		m, err := r.ReadMessage(ctx)
		require.NoError(t, err)
		if strings.Contains(string(m.Value), id) {
			require.Equal(t, "primary", string(m.Key))
			return
		}
	}
}
