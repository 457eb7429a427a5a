package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// HandleCredential manages the stored API key. The key itself is never
// echoed back; responses only report whether one is configured and where it
// came from.
func (h *Handler) HandleCredential(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		_, configured := h.creds.Get()
		h.writeJSON(w, map[string]any{
			"configured": configured,
			"source":     h.creds.Source(),
		})
	case "POST":
		var request struct {
			APIKey string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		key := strings.TrimSpace(request.APIKey)
		if key == "" {
			h.writeError(w, "api_key is required", http.StatusBadRequest)
			return
		}
		if err := h.creds.Set(key); err != nil {
			h.writeError(w, "Failed to store credential: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, map[string]any{
			"configured": true,
			"source":     h.creds.Source(),
		})
	case "DELETE":
		if err := h.creds.Clear(); err != nil {
			h.writeError(w, "Failed to clear credential: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_, configured := h.creds.Get()
		h.writeJSON(w, map[string]any{
			"configured": configured,
			"source":     h.creds.Source(),
		})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
