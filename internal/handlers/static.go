package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/static/")
	if path == "" || path == "/" {
		path = "index.html"
	}

	// Prevent directory traversal attacks
	if strings.Contains(path, "..") {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}

	if rest, ok := strings.CutPrefix(path, "uploads/"); ok {
		http.ServeFile(w, r, filepath.Join(h.cfg.UploadsDir, rest))
		return
	}

	// Set appropriate content type based on file extension
	switch {
	case strings.HasSuffix(path, ".css"):
		w.Header().Set("Content-Type", "text/css")
	case strings.HasSuffix(path, ".js"):
		w.Header().Set("Content-Type", "application/javascript")
	case strings.HasSuffix(path, ".html"):
		w.Header().Set("Content-Type", "text/html")
	}

	http.ServeFile(w, r, "static/"+path)
}
