package api

import (
	"encoding/json"
	"net/http"

	"github.com/callbridge/callbridge/internal/dispatch"
)

type EventHandler struct {
	fanout *dispatch.Fanout
}

func NewEventHandler(fanout *dispatch.Fanout) *EventHandler {
	return &EventHandler{fanout: fanout}
}

type publishEventRequest struct {
	TenantID  string          `json:"tenant_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Publish is the HTTP face of fanOut: business modules post internal
// events here and get back the matched-subscription count. The response
// settles once every first delivery attempt has; retries keep running
// detached.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	matched, err := h.fanout.Publish(r.Context(), req.TenantID, req.EventType, req.Payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event_type":    req.EventType,
		"subscriptions": matched,
	})
}
