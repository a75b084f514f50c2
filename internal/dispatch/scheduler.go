package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/models"
	"github.com/callbridge/callbridge/internal/storage"
)

// Scheduler drives the delivery lifecycle for one subscription at a time:
// a synchronous first attempt whose result the caller observes, then up to
// maxRetries detached attempts on the backoff schedule. Every attempt is
// recorded before the scheduler moves on; exhaustion dead-letters the
// event and stops.
type Scheduler struct {
	store      storage.Storage
	sender     *Sender
	dead       *deadletter.Recorder
	maxRetries int
	schedule   []time.Duration
	log        zerolog.Logger
	wg         sync.WaitGroup
}

func NewScheduler(store storage.Storage, sender *Sender, dead *deadletter.Recorder, maxRetries int, schedule []time.Duration, log zerolog.Logger) *Scheduler {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &Scheduler{
		store:      store,
		sender:     sender,
		dead:       dead,
		maxRetries: maxRetries,
		schedule:   schedule,
		log:        log,
	}
}

func (s *Scheduler) Deliver(ctx context.Context, sub models.Subscription, eventType string, data json.RawMessage) *SendResult {
	result := s.attempt(ctx, sub, eventType, data, 1)
	if result.Success() || s.maxRetries == 0 {
		if !result.Success() {
			s.exhausted(context.Background(), sub, eventType, data, 1, result)
		}
		return result
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("subscription_id", sub.ID).Interface("panic", r).Msg("retry loop panicked")
			}
		}()
		s.retryLoop(sub, eventType, data, result)
	}()

	return result
}

// retryLoop runs detached from the triggering request, so it uses a fresh
// background context rather than the (possibly finished) request's.
func (s *Scheduler) retryLoop(sub models.Subscription, eventType string, data json.RawMessage, last *SendResult) {
	ctx := context.Background()
	attempts := 1

	for retry := 1; retry <= s.maxRetries; retry++ {
		time.Sleep(NextDelay(retry, s.schedule))

		attempts++
		last = s.attempt(ctx, sub, eventType, data, attempts)
		if last.Success() {
			s.log.Info().
				Str("subscription_id", sub.ID).
				Int("attempt", attempts).
				Msg("delivery succeeded on retry")
			return
		}
	}

	s.exhausted(ctx, sub, eventType, data, attempts, last)
}

func (s *Scheduler) attempt(ctx context.Context, sub models.Subscription, eventType string, data json.RawMessage, number int) *SendResult {
	result := s.sender.Send(ctx, sub.URL, sub.Secret, eventType, data)

	record := &models.DeliveryAttempt{
		ID:             models.NewID("att"),
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        string(data),
		AttemptNumber:  number,
		StatusCode:     result.StatusCode,
		ResponseBody:   result.ResponseBody,
		Success:        result.Success(),
		DurationMs:     result.DurationMs,
		Error:          result.Error,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateAttempt(ctx, record); err != nil {
		s.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("failed to record delivery attempt")
	}

	if !result.Success() {
		s.log.Info().
			Str("subscription_id", sub.ID).
			Int("attempt", number).
			Int("status_code", result.StatusCode).
			Str("error", result.Error).
			Msg("delivery attempt failed")
	}
	return result
}

func (s *Scheduler) exhausted(ctx context.Context, sub models.Subscription, eventType string, data json.RawMessage, attempts int, last *SendResult) {
	summary := fmt.Sprintf("%d attempts, last status %d", attempts, last.StatusCode)
	if last.Error != "" {
		summary = fmt.Sprintf("%s: %s", summary, last.Error)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		payload = map[string]any{"event": eventType}
	}

	// best-effort: a dead-letter write failure is logged inside the
	// recorder and must not escape the delivery path
	_ = s.dead.Record(ctx, "delivery:"+sub.ID, eventType, payload, summary, attempts)

	s.log.Warn().
		Str("subscription_id", sub.ID).
		Int("attempts", attempts).
		Msg("delivery permanently failed")
}

// Drain waits for in-flight retry loops to finish, up to timeout. Used on
// shutdown; draining is best-effort by design.
func (s *Scheduler) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
