package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeReceived is the acknowledgment every accepted webhook gets,
// duplicates included — upstreams must not be able to tell the
// difference.
func writeReceived(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
