// Package notifier reports liveness to the central collector.
//
// Posts are best effort: the caller logs a failure and moves on.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/daviddao/txtclock/pkg/model"
)

const defaultTimeout = 10 * time.Second

// Notifier posts liveness payloads.
type Notifier interface {
	Post(ctx context.Context, p model.LivenessPayload) error
}

// StatusError is a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded %d: %s", e.StatusCode, e.Body)
}

// HTTP posts JSON payloads to a fixed URL.
type HTTP struct {
	url    string
	client *resty.Client
}

var _ Notifier = (*HTTP)(nil)

// NewHTTP creates an HTTP notifier for url.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetHeader("User-Agent", "txtclock-agent")
	return &HTTP{url: url, client: client}
}

// Post implements Notifier.
func (h *HTTP) Post(ctx context.Context, p model.LivenessPayload) error {
	resp, err := h.client.R().SetContext(ctx).SetBody(p).Post(h.url)
	if err != nil {
		return fmt.Errorf("post liveness: %w", err)
	}
	if resp.IsError() {
		body := resp.String()
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		return &StatusError{StatusCode: resp.StatusCode(), Body: body}
	}
	return nil
}
