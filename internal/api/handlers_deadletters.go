package api

import (
	"net/http"

	"github.com/callbridge/callbridge/internal/deadletter"
	"github.com/callbridge/callbridge/internal/models"
)

type DeadLetterHandler struct {
	recorder *deadletter.Recorder
}

func NewDeadLetterHandler(recorder *deadletter.Recorder) *DeadLetterHandler {
	return &DeadLetterHandler{recorder: recorder}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")

	entries, err := h.recorder.List(r.Context(), source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	if entries == nil {
		entries = []models.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, entries)
}
