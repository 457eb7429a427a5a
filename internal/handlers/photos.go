package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/framefold/groupshot/internal/gateway"
	"github.com/framefold/groupshot/internal/media"
	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/storage"
)

func (h *Handler) handlePhotoRoutes(w http.ResponseWriter, r *http.Request, session *storage.Session, segments []string) {
	switch {
	case len(segments) == 0 || segments[0] == "":
		h.handlePhotoUpload(w, r, session)
	case len(segments) == 1:
		h.handlePhotoDelete(w, r, session, segments[0])
	case len(segments) == 2 && segments[1] == "subjects":
		h.handleSubjectAdd(w, r, session, segments[0])
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}

func (h *Handler) handlePhotoUpload(w http.ResponseWriter, r *http.Request, session *storage.Session) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("files")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(fileData)) > h.cfg.MaxUploadBytes {
		h.writeError(w, "File too large", http.StatusBadRequest)
		return
	}

	encoded, width, height, err := media.Prepare(fileData, media.Options{
		MaxEdge:  h.cfg.MaxImageEdge,
		MaxBytes: h.cfg.MaxEncodedBytes,
	})
	if err != nil {
		h.writeError(w, "Unsupported or corrupt image: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ensureUploadsDir(); err != nil {
		h.writeError(w, "Failed to create uploads directory: "+err.Error(), http.StatusInternalServerError)
		return
	}

	photoID := uuid.NewString()
	filename := photoID + ".jpg"
	storedPath := filepath.Join(h.cfg.UploadsDir, filename)
	if err := os.WriteFile(storedPath, encoded.Data, 0644); err != nil {
		h.writeError(w, "Failed to store photo: "+err.Error(), http.StatusInternalServerError)
		return
	}

	photo := &models.SourcePhoto{
		ID:              photoID,
		OriginalName:    header.Filename,
		StoredPath:      storedPath,
		PreviewURL:      "/static/uploads/" + filename,
		Width:           width,
		Height:          height,
		AnalysisPending: true,
		Encoded:         encoded,
	}
	session.AddPhoto(photo)

	slog.Info("Photo uploaded", "session", session.ID, "photo", photoID, "name", header.Filename, "bytes", len(encoded.Data))
	go h.analyzePhoto(session, photoID, encoded)

	h.writeJSON(w, photo)
}

// analyzePhoto runs subject detection in the background and settles the
// photo's pending state. Failures leave the photo editable by hand.
func (h *Handler) analyzePhoto(session *storage.Session, photoID string, img models.EncodedImage) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	defer cancel()

	profiles, err := h.analyzer.AnalyzeSubjects(ctx, img)
	if err != nil {
		slog.Error("Subject analysis failed", "session", session.ID, "photo", photoID, "kind", gateway.KindOf(err), "err", err)
		// No hand-editing placeholder when the whole account is out of quota.
		session.FailAnalysis(photoID, gateway.MessageOf(err), !gateway.IsQuota(err))
		return
	}

	subjects := make([]*models.Subject, 0, len(profiles))
	for _, p := range profiles {
		subjects = append(subjects, &models.Subject{
			ID:          uuid.NewString(),
			PhotoID:     photoID,
			Name:        p.Name,
			Description: p.Description,
		})
	}
	session.FinishAnalysis(photoID, subjects)
	slog.Info("Subject analysis complete", "session", session.ID, "photo", photoID, "subjects", len(subjects))
}

func (h *Handler) handlePhotoDelete(w http.ResponseWriter, r *http.Request, session *storage.Session, photoID string) {
	if r.Method != "DELETE" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := session.RemovePhoto(photoID); err != nil {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, session.View())
}

func (h *Handler) handleSubjectAdd(w http.ResponseWriter, r *http.Request, session *storage.Session, photoID string) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	subject, err := session.AddSubject(photoID, request.Name, request.Description)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, subject)
}

func (h *Handler) handleSubject(w http.ResponseWriter, r *http.Request, session *storage.Session, subjectID string) {
	switch r.Method {
	case "PUT":
		var request struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		subject, err := session.UpdateSubject(subjectID, request.Name, request.Description)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.writeJSON(w, subject)
	case "DELETE":
		if err := session.DeleteSubject(subjectID); err != nil {
			h.writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.writeJSON(w, session.View())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
