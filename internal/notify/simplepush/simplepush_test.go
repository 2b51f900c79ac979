package simplepush

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/pv/temperature-notifier-go/internal/notify"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func reply(req *http.Request, code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func TestClientSendPostsForm(t *testing.T) {
	var captured url.Values
	var method, endpoint string

	client := &Client{
		Key:   "HuxgBB",
		Event: "window",
		HTTP: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			method = req.Method
			endpoint = req.URL.String()
			raw, _ := io.ReadAll(req.Body)
			captured, _ = url.ParseQuery(string(raw))
			return reply(req, http.StatusOK, `{"status":"OK"}`), nil
		})},
	}

	msg := notify.Message{Title: notify.Title, Body: "Outdoor temperature is lower than indoor temperature! 19.0°C < 22.0°C"}
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if method != http.MethodPost {
		t.Fatalf("expected POST, got %s", method)
	}
	if endpoint != DefaultURL {
		t.Fatalf("expected %s, got %s", DefaultURL, endpoint)
	}
	want := map[string]string{"key": "HuxgBB", "title": "Temperature Alert", "msg": msg.Body, "event": "window"}
	for k, v := range want {
		if got := captured.Get(k); got != v {
			t.Fatalf("form %s = %q, want %q", k, got, v)
		}
	}
}

func TestClientSendOmitsEmptyEvent(t *testing.T) {
	client := &Client{
		Key: "k",
		URL: "http://push.local/send",
		HTTP: &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			if strings.Contains(string(raw), "event=") {
				t.Errorf("unexpected event field in %q", raw)
			}
			return reply(req, http.StatusOK, ""), nil
		})},
	}
	if err := client.Send(context.Background(), notify.Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
}

func TestClientSendErrors(t *testing.T) {
	tests := []struct {
		name    string
		rt      roundTripFunc
		wantErr string
	}{
		{
			name: "http status",
			rt: func(req *http.Request) (*http.Response, error) {
				return reply(req, http.StatusBadGateway, "upstream down"), nil
			},
			wantErr: "upstream down",
		},
		{
			name: "rejected by api",
			rt: func(req *http.Request) (*http.Response, error) {
				return reply(req, http.StatusOK, `{"status":"Error","message":"Invalid key"}`), nil
			},
			wantErr: "Invalid key",
		},
		{
			name: "transport",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("dial tcp: no route to host")
			},
			wantErr: "no route to host",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{Key: "k", HTTP: &http.Client{Transport: tt.rt}}
			err := client.Send(context.Background(), notify.Message{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := (&Client{}).Send(context.Background(), notify.Message{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
