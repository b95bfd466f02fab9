package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Webhook posts operator alerts to an HTTP endpoint. It is best-effort:
// callers treat delivery failures as log-worthy, never fatal.
type Webhook struct {
	url    string
	method string
	client *http.Client
}

// NewWebhook builds a webhook notifier.
func NewWebhook(url, method string) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if method == "" {
		method = http.MethodPost
	}
	return &Webhook{
		url:    url,
		method: strings.ToUpper(method),
		client: &http.Client{Timeout: defaultTimeout},
	}, nil
}

type payload struct {
	Event  string         `json:"event"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Notify delivers one alert.
func (w *Webhook) Notify(ctx context.Context, event string, fields map[string]any) error {
	body, err := json.Marshal(payload{
		Event:  event,
		Time:   time.Now().UTC(),
		Fields: fields,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("deliver %s: status %d", event, resp.StatusCode)
	}
	return nil
}
