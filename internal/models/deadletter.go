package models

import "time"

// DeadLetter is a terminal failure record. The payload stored here has
// already been through redaction; only structural shape survives for
// operator triage.
type DeadLetter struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Error     string         `json:"error"`
	Attempts  int            `json:"attempts"`
	ReplayRef string         `json:"replay_ref"`
	CreatedAt time.Time      `json:"created_at"`
}
