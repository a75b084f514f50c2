package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/storage"
)

func newProcessor(t *testing.T, dispatcher *Dispatcher) (*Processor, *deadletter.Recorder) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	recorder := deadletter.NewRecorder(deadletter.NewMemoryStore(), time.Hour, zerolog.Nop())
	return NewProcessor(store, dispatcher, recorder, time.Minute, zerolog.Nop()), recorder
}

func TestProcessDuplicateRunsSideEffectOnce(t *testing.T) {
	calls := 0
	d := NewDispatcher(zerolog.Nop())
	d.Register("charge.succeeded", func(ctx context.Context, ev Event) error {
		calls++
		return nil
	})
	p, _ := newProcessor(t, d)

	ev := Event{
		ProviderEventID: "evt_1",
		Source:          "payments",
		EventType:       "charge.succeeded",
		TenantID:        "ten_1",
		Data:            map[string]any{"id": "evt_1"},
	}

	outcome, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, err = p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, 1, calls)
}

func TestProcessHandlerFailureDeadLettersAndLeavesClaimOpen(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	attempt := 0
	d.Register("call.completed", func(ctx context.Context, ev Event) error {
		attempt++
		if attempt == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	})
	p, recorder := newProcessor(t, d)
	p.lease = 0 // let the provider retry reclaim immediately

	ev := Event{
		ProviderEventID: "evt_2",
		Source:          "telephony",
		EventType:       "call.completed",
		Data:            map[string]any{"sid": "CA1", "caller_phone": "+15550001111"},
	}

	outcome, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)

	letters, err := recorder.List(context.Background(), "telephony")
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, deadletter.RedactedValue, letters[0].Payload["caller_phone"])

	// the provider's redelivery succeeds because the claim was never
	// marked processed
	outcome, err = p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 2, attempt)
}

func TestDispatchUnknownTypeWithoutFallback(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	err := d.Dispatch(context.Background(), Event{EventType: "mystery"})
	require.Error(t, err)
}

func TestDispatchFallback(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	var got string
	d.RegisterFallback(func(ctx context.Context, ev Event) error {
		got = ev.EventType
		return nil
	})
	require.NoError(t, d.Dispatch(context.Background(), Event{EventType: "mystery"}))
	assert.Equal(t, "mystery", got)
}
