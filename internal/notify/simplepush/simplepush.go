// Package simplepush отправляет уведомления через Simplepush HTTP API.
package simplepush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pv/temperature-notifier-go/internal/logging"
	"github.com/pv/temperature-notifier-go/internal/notify"
)

// DefaultURL указывает на метод отправки.
const DefaultURL = "https://api.simplepush.io/send"

// Client публикует сообщение формой key/title/msg/event.
type Client struct {
	Key    string
	Event  string
	URL    string
	HTTP   *http.Client
	Logger *zerolog.Logger
}

func (c *Client) Name() string { return "simplepush" }

// Send выполняет POST и проверяет статус ответа.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if c == nil {
		return fmt.Errorf("simplepush: nil receiver")
	}
	if c.Key == "" {
		return fmt.Errorf("simplepush: key is empty")
	}
	endpoint := c.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := logging.OrNop(c.Logger)

	form := url.Values{}
	form.Set("key", c.Key)
	form.Set("title", msg.Title)
	form.Set("msg", msg.Body)
	if c.Event != "" {
		form.Set("event", c.Event)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("simplepush: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("simplepush: do request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	log.Debug().Str("status", resp.Status).Dur("elapsed", time.Since(start)).Msg("simplepush response")
	if resp.StatusCode >= 300 {
		return fmt.Errorf("simplepush: send failed: status=%s body=%s", resp.Status, strings.TrimSpace(string(body)))
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Status != "" && !strings.EqualFold(reply.Status, "OK") {
		return fmt.Errorf("simplepush: send rejected: status=%s message=%s", reply.Status, reply.Message)
	}
	return nil
}
