package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/framefold/groupshot/internal/archive"
	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/storage"
)

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request, session *storage.Session) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		ScenePrompt    string `json:"scene_prompt"`
		VariationCount int    `json:"variation_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	refs, subjects := session.GenerationInput()
	batch, err := session.Orch.StartBatch(refs, subjects, request.ScenePrompt, request.VariationCount)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	// The live batch is still settling; serialize a stable copy.
	if snapshot := h.findBatch(session, batch.ID); snapshot != nil {
		h.writeJSON(w, snapshot)
		return
	}
	h.writeError(w, "Batch vanished", http.StatusInternalServerError)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, session *storage.Session) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session.Orch.CancelBatch()
	h.writeJSON(w, session.View())
}

func (h *Handler) handleRetryItem(w http.ResponseWriter, r *http.Request, session *storage.Session, itemID string) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := session.Orch.RetryItem(itemID); err != nil {
		h.writeGatewayError(w, err)
		return
	}
	item, _ := session.Orch.Item(itemID)
	h.writeJSON(w, item)
}

func (h *Handler) handleRetryAllFailed(w http.ResponseWriter, r *http.Request, session *storage.Session) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	retried, err := session.Orch.RetryAllFailed()
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	h.writeJSON(w, map[string]any{
		"retried": retried,
		"session": session.View(),
	})
}

func (h *Handler) handleItemImage(w http.ResponseWriter, r *http.Request, session *storage.Session, itemID string) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	item, ok := session.Orch.Item(itemID)
	if !ok {
		h.writeError(w, "Item not found", http.StatusNotFound)
		return
	}
	if item.Status != models.StatusSuccess || item.Result == nil {
		h.writeError(w, "Item has no image", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", item.Result.MIMEType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(item.Result.Data); err != nil {
		h.writeError(w, "Failed to write image", http.StatusInternalServerError)
	}
}

func (h *Handler) handleBatchExport(w http.ResponseWriter, r *http.Request, session *storage.Session, batchID string) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	batch := h.findBatch(session, batchID)
	if batch == nil {
		h.writeError(w, "Batch not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+archive.Filename(batch)+"\"")
	if err := archive.WriteBatch(w, batch); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
	}
}

func (h *Handler) findBatch(session *storage.Session, batchID string) *models.Batch {
	for _, batch := range session.Orch.Snapshot() {
		if batch.ID == batchID {
			return batch
		}
	}
	return nil
}
