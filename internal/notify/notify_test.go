package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pv/temperature-notifier-go/internal/engine"
)

type recordingNotifier struct {
	name string
	err  error
	got  []Message
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

var at = time.Date(2024, 6, 1, 18, 5, 0, 0, time.UTC)

func TestNewMessagePrimary(t *testing.T) {
	msg := NewMessage("id-1", engine.ReasonPrimary, engine.Sample{Timestamp: at, Indoor: 22, Outdoor: 19}, engine.RapidChange{})
	require.Equal(t, "Temperature Alert", msg.Title)
	require.Equal(t, "Outdoor temperature is lower than indoor temperature! 19.0°C < 22.0°C", msg.Body)
	require.Zero(t, msg.Rise)
}

func TestNewMessageRapidChange(t *testing.T) {
	rc := engine.RapidChange{Triggered: true, Low: 15, Peak: 18.5, After: 17.3}
	msg := NewMessage("id-2", engine.ReasonRapidChange, engine.Sample{Timestamp: at, Indoor: 23, Outdoor: 17.3}, rc)
	require.Equal(t, 3.5, msg.Rise)
	require.InDelta(t, 1.2, msg.Drop, 1e-9)
	require.Contains(t, msg.Body, "rose by 3.5°C")
	require.Contains(t, msg.Body, "dropped by 1.2°C")
}

func TestPayload(t *testing.T) {
	msg := NewMessage("id-3", engine.ReasonPrimary, engine.Sample{Timestamp: at, Indoor: 22, Outdoor: 19}, engine.RapidChange{})
	data, err := Payload(msg)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "primary", got["reason"])
	require.Equal(t, "2024-06-01T18:05:00Z", got["time"])
	require.NotContains(t, got, "rise")

	rapid := NewMessage("id-4", engine.ReasonRapidChange, engine.Sample{Timestamp: at}, engine.RapidChange{Peak: 3, After: 2})
	data, err = Payload(rapid)
	require.NoError(t, err)
	require.Contains(t, string(data), `"drop":1`)
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	first := &recordingNotifier{name: "first", err: errors.New("503 service unavailable")}
	second := &recordingNotifier{name: "second"}
	msg := Message{ID: "x"}

	results := Fanout(context.Background(), []Notifier{first, second}, msg, nil)
	require.Len(t, results, 2)
	require.Len(t, second.got, 1, "second notifier must be attempted")

	require.ErrorIs(t, results[0].Err, ErrDeliveryFailed)
	require.Contains(t, results[0].Err.Error(), "first")
	require.NoError(t, results[1].Err)

	err := Failed(results)
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.NoError(t, Failed(results[1:]))
}

func TestStdoutNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &StdoutNotifier{Writer: &buf}
	msg := NewMessage("abc", engine.ReasonPrimary, engine.Sample{Timestamp: at, Indoor: 22, Outdoor: 19}, engine.RapidChange{})
	require.NoError(t, n.Send(context.Background(), msg))

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "[2024-06-01 18:05:00] Temperature Alert: "))
	require.Contains(t, line, "reason=primary id=abc")

	require.Error(t, (&StdoutNotifier{}).Send(context.Background(), msg))
}
