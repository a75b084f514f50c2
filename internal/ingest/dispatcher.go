// Package ingest turns verified provider webhooks into exactly-one run of
// the matching business handler, guarded by the processed-event ledger.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Event is an authenticated, parsed inbound provider event.
type Event struct {
	ProviderEventID string
	Source          string
	EventType       string
	TenantID        string
	Data            map[string]any
}

// Handler is the business-logic hook invoked once per provider event.
// Handlers live outside this package; call-state transitions, billing
// updates and transcript enrichment all plug in here.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher routes events to handlers by event-type tag. A fallback
// handler, when set, receives every type without an explicit route.
type Dispatcher struct {
	handlers map[string]Handler
	fallback Handler
	log      zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler), log: log}
}

func (d *Dispatcher) Register(eventType string, h Handler) {
	d.handlers[eventType] = h
}

func (d *Dispatcher) RegisterFallback(h Handler) {
	d.fallback = h
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	h, ok := d.handlers[ev.EventType]
	if !ok {
		h = d.fallback
	}
	if h == nil {
		return fmt.Errorf("no handler registered for event type %q", ev.EventType)
	}
	return h(ctx, ev)
}
