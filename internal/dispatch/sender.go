// Package dispatch delivers internal events to subscriber endpoints: one
// signed HTTP POST per attempt, a fixed backoff schedule for retries, and
// conc-pooled fan-out across subscriptions.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/callbridge/callbridge/internal/signing"
)

const (
	DefaultTimeout      = 10 * time.Second
	responseBodyLimit   = 1000
	eventTypeHeader     = "X-Callbridge-Event"
	timestampHeader     = "X-Callbridge-Timestamp"
	signatureHeader     = "X-Callbridge-Signature"
	unixTimestampHeader = "X-Callbridge-Unix-Timestamp"
)

type SendResult struct {
	StatusCode   int
	ResponseBody string
	DurationMs   int64
	Error        string
}

func (r *SendResult) Success() bool {
	return r.Error == "" && IsSuccess(r.StatusCode)
}

type Sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send performs exactly one delivery attempt. It never returns an error:
// network failures, timeouts and non-2xx statuses all come back inside
// the result so the scheduler can classify them.
func (s *Sender) Send(ctx context.Context, url, secret, eventType string, data json.RawMessage) *SendResult {
	start := time.Now()
	now := start.UTC()

	body, err := json.Marshal(envelope{
		Event:     eventType,
		Timestamp: now.Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return &SendResult{
			Error:      fmt.Sprintf("failed to encode payload: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &SendResult{
			Error:      fmt.Sprintf("failed to create request: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CallBridge/1.0")
	req.Header.Set(eventTypeHeader, eventType)
	req.Header.Set(timestampHeader, now.Format(time.RFC3339))
	if secret != "" {
		signature, timestamp := signing.SignAt(secret, body, now)
		req.Header.Set(signatureHeader, signature)
		req.Header.Set(unixTimestampHeader, fmt.Sprintf("%d", timestamp))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendResult{
			Error:      fmt.Sprintf("request failed: %v", err),
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))

	return &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(snippet),
		DurationMs:   time.Since(start).Milliseconds(),
	}
}

type envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
