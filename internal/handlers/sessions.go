package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/orchestrator"
	"github.com/framefold/groupshot/internal/storage"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.sessionStore.GetAll()
		sessionList := make([]*models.StudioSession, 0, len(sessions))
		for _, session := range sessions {
			sessionList = append(sessionList, session.View())
		}
		h.writeJSON(w, sessionList)
	case "POST":
		orch := orchestrator.New(h.analyzer, h.generator, orchestrator.ModelPair{
			Default:  h.cfg.ImageModel,
			Fallback: h.cfg.FallbackImageModel,
		}, nil)
		session := storage.NewSession(orch)
		h.sessionStore.Set(session.ID, session)
		h.writeJSON(w, session.View())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSessionDetail routes everything under /api/sessions/{id}. Nested
// resources dispatch on the path segments after the session id.
func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return
	}

	session, ok := h.getSessionOrError(w, segments[0])
	if !ok {
		return
	}

	switch {
	case len(segments) == 1:
		h.handleSession(w, r, session)
	case segments[1] == "photos":
		h.handlePhotoRoutes(w, r, session, segments[2:])
	case segments[1] == "subjects" && len(segments) == 3:
		h.handleSubject(w, r, session, segments[2])
	case segments[1] == "generate" && len(segments) == 2:
		h.handleGenerate(w, r, session)
	case segments[1] == "cancel" && len(segments) == 2:
		h.handleCancel(w, r, session)
	case segments[1] == "retry-failed" && len(segments) == 2:
		h.handleRetryAllFailed(w, r, session)
	case segments[1] == "items" && len(segments) == 4 && segments[3] == "retry":
		h.handleRetryItem(w, r, session, segments[2])
	case segments[1] == "items" && len(segments) == 4 && segments[3] == "image":
		h.handleItemImage(w, r, session, segments[2])
	case segments[1] == "batches" && len(segments) == 4 && segments[3] == "export":
		h.handleBatchExport(w, r, session, segments[2])
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, session *storage.Session) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, session.View())
	case "DELETE":
		session.Orch.CancelBatch()
		for _, photo := range session.View().Photos {
			if err := session.RemovePhoto(photo.ID); err != nil {
				slog.Warn("Unable to remove stored photo", "photo", photo.ID, "err", err)
			}
		}
		h.sessionStore.Delete(session.ID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
