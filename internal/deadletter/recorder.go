package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/callbridge/callbridge/internal/models"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	keyPrefix  = "dl:"
)

// Recorder persists redacted copies of terminally failed events. It never
// blocks a delivery and never logs payload contents; the returned error
// exists only for the inbound path, which must know whether the entry is
// durable before acknowledging the upstream.
type Recorder struct {
	store Store
	ttl   time.Duration
	log   zerolog.Logger
}

func NewRecorder(store Store, ttl time.Duration, log zerolog.Logger) *Recorder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Recorder{store: store, ttl: ttl, log: log}
}

func (r *Recorder) Record(ctx context.Context, source, eventType string, payload map[string]any, errSummary string, attempts int) error {
	now := time.Now().UTC()
	entry := models.DeadLetter{
		ID:        models.NewID("dl"),
		Source:    source,
		EventType: eventType,
		Payload:   Redact(payload),
		Error:     errSummary,
		Attempts:  attempts,
		ReplayRef: fmt.Sprintf("%s:%d", source, now.UnixNano()),
		CreatedAt: now,
	}

	value, err := json.Marshal(entry)
	if err != nil {
		r.log.Error().Err(err).Str("source", source).Str("event_type", eventType).Msg("failed to encode dead letter")
		return err
	}

	key := Key(source, now.UnixNano())
	if err := r.store.Put(ctx, key, value, r.ttl); err != nil {
		r.log.Error().Err(err).Str("key", key).Msg("failed to write dead letter")
		return err
	}

	r.log.Warn().
		Str("source", source).
		Str("event_type", eventType).
		Int("attempts", attempts).
		Str("replay_ref", entry.ReplayRef).
		Msg("event dead-lettered")
	return nil
}

func (r *Recorder) List(ctx context.Context, source string) ([]models.DeadLetter, error) {
	prefix := keyPrefix
	if source != "" {
		prefix = keyPrefix + source + ":"
	}
	values, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	entries := make([]models.DeadLetter, 0, len(values))
	for key, value := range values {
		var entry models.DeadLetter
		if err := json.Unmarshal(value, &entry); err != nil {
			r.log.Warn().Str("key", key).Msg("skipping undecodable dead letter")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func Key(source string, unixNanos int64) string {
	return fmt.Sprintf("%s%s:%d", keyPrefix, source, unixNanos)
}
