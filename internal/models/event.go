package models

import "time"

// ProcessedEvent is one row in the inbound dedup ledger. The provider
// event id carries a unique constraint; a second delivery of the same id
// is short-circuited before any side effect re-runs.
type ProcessedEvent struct {
	ProviderEventID string     `json:"provider_event_id"`
	Source          string     `json:"source"`
	EventType       string     `json:"event_type"`
	TenantID        string     `json:"tenant_id"`
	Processed       bool       `json:"processed"`
	ClaimedAt       time.Time  `json:"claimed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}
