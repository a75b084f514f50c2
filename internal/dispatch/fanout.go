package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/callbridge/callbridge/internal/storage"
)

const (
	DefaultFanoutLimit   = 50
	DefaultFanoutWorkers = 10
)

// Fanout delivers one internal event to every matching subscription. Each
// subscription gets its own scheduler run; one subscriber's failure never
// delays or affects another's delivery. Publish returns once every first
// attempt has settled — retries continue detached.
type Fanout struct {
	store     storage.Storage
	scheduler *Scheduler
	limit     int
	workers   int
	log       zerolog.Logger
}

func NewFanout(store storage.Storage, scheduler *Scheduler, limit, workers int, log zerolog.Logger) *Fanout {
	if limit <= 0 {
		limit = DefaultFanoutLimit
	}
	if workers <= 0 {
		workers = DefaultFanoutWorkers
	}
	return &Fanout{
		store:     store,
		scheduler: scheduler,
		limit:     limit,
		workers:   workers,
		log:       log,
	}
}

// Publish returns the number of matched subscriptions, not successes:
// fan-out succeeds by attempting delivery, not by guaranteeing receipt.
func (f *Fanout) Publish(ctx context.Context, tenantID, eventType string, data json.RawMessage) (int, error) {
	subs, err := f.store.GetSubscriptionsByEvent(ctx, tenantID, eventType, f.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to match subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	p := pool.New().WithMaxGoroutines(f.workers)
	for _, sub := range subs {
		sub := sub
		p.Go(func() {
			f.scheduler.Deliver(ctx, sub, eventType, data)
		})
	}
	p.Wait()

	f.log.Info().
		Str("tenant_id", tenantID).
		Str("event_type", eventType).
		Int("subscriptions", len(subs)).
		Msg("event fanned out")
	return len(subs), nil
}
