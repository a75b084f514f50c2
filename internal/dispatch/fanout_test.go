package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutOneFailingSubscriberDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t, 3)
	fanout := NewFanout(h.store, h.scheduler, 50, 10, zerolog.Nop())

	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer badServer.Close()

	var healthy []string
	for i := 0; i < 4; i++ {
		healthy = append(healthy, h.subscription(t, okServer.URL).ID)
	}
	failing := h.subscription(t, badServer.URL)

	start := time.Now()
	matched, err := fanout.Publish(context.Background(), "ten_1", "call.completed", json.RawMessage(`{"sid":"CA1"}`))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 5, matched, "fan-out reports matched subscriptions, not successes")

	// Publish settles after first attempts; the failing subscriber's
	// retries run detached and must not hold the caller
	assert.Less(t, elapsed, 2*time.Second)

	for _, id := range healthy {
		attempts := h.attempts(t, id)
		require.Len(t, attempts, 1)
		assert.True(t, attempts[0].Success)
	}

	require.True(t, h.scheduler.Drain(5*time.Second))

	assert.Len(t, h.attempts(t, failing.ID), 4)
	letters := h.deadLetters(t)
	require.Len(t, letters, 1)
	assert.Equal(t, "delivery:"+failing.ID, letters[0].Source)
}

func TestFanoutZeroMatchesIsNoOp(t *testing.T) {
	h := newHarness(t, 3)
	fanout := NewFanout(h.store, h.scheduler, 50, 10, zerolog.Nop())

	matched, err := fanout.Publish(context.Background(), "ten_1", "call.completed", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Zero(t, matched)
}

func TestFanoutHonorsCap(t *testing.T) {
	h := newHarness(t, 0)
	fanout := NewFanout(h.store, h.scheduler, 3, 10, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	for i := 0; i < 5; i++ {
		h.subscription(t, server.URL)
	}

	matched, err := fanout.Publish(context.Background(), "ten_1", "call.completed", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 3, matched)
}
