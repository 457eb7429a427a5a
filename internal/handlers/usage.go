package handlers

import (
	"fmt"
	"net/http"
	"time"
)

// HandleUsage reports the in-memory cost ledger.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, map[string]any{
		"records":        h.usage.Records(),
		"total_cost_usd": h.usage.TotalCost(),
	})
}

// HandleUsageExport streams the ledger as a parquet file.
func (h *Handler) HandleUsageExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := fmt.Sprintf("usage-%s.parquet", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	if err := h.usage.ExportParquet(w); err != nil {
		h.writeError(w, "Failed to export usage: "+err.Error(), http.StatusInternalServerError)
	}
}
