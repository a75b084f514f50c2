package deadletter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactReplacesPIIAtAnyDepth(t *testing.T) {
	payload := map[string]any{
		"id":   "evt_1",
		"type": "call.completed",
		"call": map[string]any{
			"sid":          "CA123",
			"caller_phone": "+15550001111",
			"duration":     42,
			"participants": []any{
				map[string]any{"display_name": "Ada", "role": "agent"},
			},
		},
		"transcript_text": "hello world",
		"recording_url":   "https://cdn.example.com/rec/1.mp3",
	}

	redacted := Redact(payload)

	assert.Equal(t, "evt_1", redacted["id"])
	assert.Equal(t, "call.completed", redacted["type"])

	call := redacted["call"].(map[string]any)
	assert.Equal(t, "CA123", call["sid"])
	assert.Equal(t, RedactedValue, call["caller_phone"])
	assert.Equal(t, 42, call["duration"])

	participant := call["participants"].([]any)[0].(map[string]any)
	assert.Equal(t, RedactedValue, participant["display_name"])
	assert.Equal(t, "agent", participant["role"])

	assert.Equal(t, RedactedValue, redacted["transcript_text"])
	assert.Equal(t, RedactedValue, redacted["recording_url"])

	// original untouched
	assert.Equal(t, "+15550001111", payload["call"].(map[string]any)["caller_phone"])
}

func TestRedactPreservesStructuralKeys(t *testing.T) {
	payload := map[string]any{
		"id": "evt_2",
		"data": map[string]any{
			"amount":       100,
			"card_last4":   "4242",
			"customer_ref": "cus_9",
		},
	}

	redacted := Redact(payload)

	require.Len(t, redacted, len(payload))
	data := redacted["data"].(map[string]any)
	require.Len(t, data, len(payload["data"].(map[string]any)))
	for key := range payload["data"].(map[string]any) {
		assert.Contains(t, data, key)
	}
}

func TestRedactDepthBound(t *testing.T) {
	deep := map[string]any{"safe": "v"}
	payload := deep
	for i := 0; i < maxRedactDepth+5; i++ {
		payload = map[string]any{"level": payload}
	}

	redacted := Redact(payload)

	// walk down: past the depth cap everything collapses to the marker
	current := any(redacted)
	depth := 0
	for {
		m, ok := current.(map[string]any)
		if !ok {
			assert.Equal(t, RedactedValue, current)
			break
		}
		if v, ok := m["level"]; ok {
			current = v
		} else {
			current = m["safe"]
		}
		depth++
		require.Less(t, depth, maxRedactDepth+5)
	}
}

func TestRedactEmptyPayload(t *testing.T) {
	assert.Empty(t, Redact(nil))
	assert.Empty(t, Redact(map[string]any{}))
}
