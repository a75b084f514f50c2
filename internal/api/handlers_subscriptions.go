package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbridge/callbridge/internal/models"
	"github.com/callbridge/callbridge/internal/storage"
)

type SubscriptionHandler struct {
	store storage.Storage
}

func NewSubscriptionHandler(store storage.Storage) *SubscriptionHandler {
	return &SubscriptionHandler{store: store}
}

type createSubscriptionRequest struct {
	TenantID   string   `json:"tenant_id"`
	URL        string   `json:"url"`
	Secret     string   `json:"secret"`
	EventTypes []string `json:"event_types"`
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if !isValidSubscriberURL(req.URL) {
		writeError(w, http.StatusBadRequest, "url must be a valid absolute HTTP or HTTPS URL")
		return
	}

	secret := req.Secret
	if secret == "" {
		secret = models.NewSecret()
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:         models.NewID("sub"),
		TenantID:   req.TenantID,
		URL:        req.URL,
		Secret:     secret,
		EventTypes: req.EventTypes,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sub.EventTypes == nil {
		sub.EventTypes = []string{}
	}

	if err := h.store.CreateSubscription(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// the secret is returned exactly once, on creation
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	sub.Secret = ""
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	subs, err := h.store.ListSubscriptions(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	for i := range subs {
		subs[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, subs)
}

type updateSubscriptionRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != "" {
		if !isValidSubscriberURL(req.URL) {
			writeError(w, http.StatusBadRequest, "url must be a valid absolute HTTP or HTTPS URL")
			return
		}
		sub.URL = req.URL
	}
	if req.EventTypes != nil {
		sub.EventTypes = req.EventTypes
	}

	if err := h.store.UpdateSubscription(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	sub.Secret = ""
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSubscription(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleRequest struct {
	Active bool `json:"active"`
}

func (h *SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.ToggleSubscription(r.Context(), id, req.Active); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

func (h *SubscriptionHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	attempts, err := h.store.ListAttemptsBySubscription(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []models.DeliveryAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func isValidSubscriberURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
