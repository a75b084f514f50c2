package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/callbridge/callbridge/internal/ingest"
	"github.com/callbridge/callbridge/internal/verify"
)

const maxWebhookBodySize = 1 << 20 // 1MB

type WebhookHandler struct {
	registry  *verify.Registry
	processor *ingest.Processor
	log       zerolog.Logger
}

func NewWebhookHandler(registry *verify.Registry, processor *ingest.Processor, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, processor: processor, log: log}
}

// Receive handles POST /webhooks/{source}. Verification runs against the
// raw body before anything is parsed; nothing downstream ever sees an
// unauthenticated request. Response policy: 401 failed verification, 500
// unconfigured source, 400 malformed body, 200 for everything the system
// has durably taken responsibility for — fresh events, duplicates, and
// handler failures that were dead-lettered.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.registry.Verify(source, body, r.Header, time.Now()); err != nil {
		if verify.IsNotConfigured(err) {
			h.log.Error().Err(err).Str("source", source).Msg("webhook verification misconfigured")
			writeError(w, http.StatusInternalServerError, "verification is not configured for this source")
			return
		}
		h.log.Warn().Err(err).Str("source", source).Msg("webhook verification failed")
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	data, err := parseWebhookBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ev, ok := extractEvent(source, data)
	if !ok {
		writeError(w, http.StatusBadRequest, "event id and event type are required")
		return
	}

	outcome, err := h.processor.Process(r.Context(), ev)
	if err != nil {
		h.log.Error().Err(err).Str("source", source).Msg("webhook processing failed without dead letter")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if outcome == ingest.OutcomeDuplicate {
		h.log.Debug().Str("source", source).Str("provider_event_id", ev.ProviderEventID).Msg("duplicate webhook acknowledged")
	}
	writeReceived(w)
}

func parseWebhookBody(contentType string, body []byte) (map[string]any, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		data := make(map[string]any, len(values))
		for key := range values {
			data[key] = values.Get(key)
		}
		return data, nil
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// extractEvent pulls the provider event id, event type and tenant out of
// the source-specific payload shape.
func extractEvent(source string, data map[string]any) (ingest.Event, bool) {
	ev := ingest.Event{
		Source: source,
		Data:   data,
	}

	ev.ProviderEventID = firstString(data, "id", "event_id", "EventSid", "CallSid")
	ev.EventType = firstString(data, "type", "event", "event_type")
	ev.TenantID = firstString(data, "tenant_id", "account_id", "AccountSid")

	// telephony status callbacks carry a status field instead of an
	// explicit event type
	if ev.EventType == "" {
		if status := firstString(data, "CallStatus", "call_status"); status != "" {
			ev.EventType = "call." + strings.ToLower(status)
		}
	}

	if ev.ProviderEventID == "" || ev.EventType == "" {
		return ingest.Event{}, false
	}
	return ev, true
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
