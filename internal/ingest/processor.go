package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/models"
	"github.com/callbridge/callbridge/internal/storage"
)

// DefaultClaimLease bounds how long an unfinished claim blocks duplicate
// deliveries of the same provider event id. Upstream retry intervals are
// all longer than this, so a legitimate redelivery after a crashed or
// failed run can reclaim the id.
const DefaultClaimLease = 30 * time.Second

type Outcome int

const (
	// OutcomeProcessed means the handler ran and the ledger row is marked.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the event id was already handled; no side
	// effect ran.
	OutcomeDuplicate
	// OutcomeDeadLettered means the handler failed and a redacted copy
	// was durably stored; the ledger row stays unprocessed so a provider
	// retry can succeed later.
	OutcomeDeadLettered
)

type Processor struct {
	store      storage.Storage
	dispatcher *Dispatcher
	dead       *deadletter.Recorder
	lease      time.Duration
	log        zerolog.Logger
}

func NewProcessor(store storage.Storage, dispatcher *Dispatcher, dead *deadletter.Recorder, lease time.Duration, log zerolog.Logger) *Processor {
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &Processor{
		store:      store,
		dispatcher: dispatcher,
		dead:       dead,
		lease:      lease,
		log:        log,
	}
}

// Process runs the dedup-claim / dispatch / mark-processed cycle for one
// inbound event. An error return means neither the handler completed nor
// a dead letter could be written, which the HTTP boundary maps to 500 so
// the upstream retries.
func (p *Processor) Process(ctx context.Context, ev Event) (Outcome, error) {
	claimed, err := p.store.ClaimEvent(ctx, &models.ProcessedEvent{
		ProviderEventID: ev.ProviderEventID,
		Source:          ev.Source,
		EventType:       ev.EventType,
		TenantID:        ev.TenantID,
	}, p.lease)
	if err != nil {
		return 0, err
	}
	if !claimed {
		p.log.Debug().
			Str("source", ev.Source).
			Str("provider_event_id", ev.ProviderEventID).
			Msg("duplicate provider event short-circuited")
		return OutcomeDuplicate, nil
	}

	if err := p.dispatcher.Dispatch(ctx, ev); err != nil {
		p.log.Error().Err(err).
			Str("source", ev.Source).
			Str("event_type", ev.EventType).
			Str("provider_event_id", ev.ProviderEventID).
			Msg("inbound event processing failed")

		// claim stays unprocessed so a provider retry can succeed later;
		// dead-letter now for operator visibility
		if dlErr := p.dead.Record(ctx, ev.Source, ev.EventType, ev.Data, err.Error(), 1); dlErr != nil {
			return 0, dlErr
		}
		return OutcomeDeadLettered, nil
	}

	if err := p.store.MarkProcessed(ctx, ev.ProviderEventID); err != nil {
		p.log.Error().Err(err).
			Str("provider_event_id", ev.ProviderEventID).
			Msg("failed to mark event processed")
		return 0, err
	}
	return OutcomeProcessed, nil
}
