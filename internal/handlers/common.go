package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/framefold/groupshot/internal/config"
	"github.com/framefold/groupshot/internal/credentials"
	"github.com/framefold/groupshot/internal/gateway"
	"github.com/framefold/groupshot/internal/ledger"
	"github.com/framefold/groupshot/internal/storage"
)

type Handler struct {
	cfg          config.Config
	sessionStore *storage.SessionStore
	creds        *credentials.Store
	usage        *ledger.Ledger
	analyzer     *gateway.Analyzer
	generator    *gateway.Generator
}

func New(cfg config.Config) *Handler {
	creds := credentials.Load(cfg.CredentialsPath)

	prices := ledger.DefaultPriceTable()
	if cfg.PriceTablePath != "" {
		loaded, err := ledger.LoadPriceTable(cfg.PriceTablePath)
		if err != nil {
			slog.Error("Unable to load price table, using defaults", "path", cfg.PriceTablePath, "err", err)
		} else {
			prices = loaded
		}
	}
	usage := ledger.New(prices)

	return &Handler{
		cfg:          cfg,
		sessionStore: storage.New(),
		creds:        creds,
		usage:        usage,
		analyzer:     gateway.NewAnalyzer(creds, usage, cfg.TextModel, nil),
		generator:    gateway.NewGenerator(creds, usage, nil),
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeGatewayError maps the gateway's error taxonomy onto HTTP statuses and
// ships the user-facing guidance text as the response body.
func (h *Handler) writeGatewayError(w http.ResponseWriter, err error) {
	msg := gateway.MessageOf(err)
	switch gateway.KindOf(err) {
	case gateway.KindValidation:
		h.writeError(w, msg, http.StatusBadRequest)
	case gateway.KindQuotaExhausted:
		h.writeError(w, msg, http.StatusTooManyRequests)
	case gateway.KindServiceOverloaded:
		h.writeError(w, msg, http.StatusServiceUnavailable)
	case gateway.KindCancelled:
		h.writeError(w, msg, http.StatusConflict)
	case gateway.KindPromptBlocked, gateway.KindGenerationRefused, gateway.KindEmptyResponse:
		h.writeError(w, msg, http.StatusUnprocessableEntity)
	default:
		h.writeError(w, msg, http.StatusInternalServerError)
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*storage.Session, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

// File operation helpers
func (h *Handler) ensureUploadsDir() error {
	return os.MkdirAll(h.cfg.UploadsDir, 0755)
}
