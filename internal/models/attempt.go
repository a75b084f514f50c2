package models

import "time"

// DeliveryAttempt is one HTTP call made to a subscriber endpoint.
// Rows are append-only: retries create new rows, nothing is updated.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	EventType      string    `json:"event_type"`
	Payload        string    `json:"payload"`
	AttemptNumber  int       `json:"attempt_number"`
	StatusCode     int       `json:"status_code"`
	ResponseBody   string    `json:"response_body"`
	Success        bool      `json:"success"`
	DurationMs     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
