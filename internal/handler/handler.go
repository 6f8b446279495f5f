package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/omrscore/internal/handler/views"
	appI18n "github.com/pavelanni/omrscore/internal/i18n"
	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer"
	"github.com/pavelanni/omrscore/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store // nil when history is disabled
	detector recognizer.Detector
	config   model.ServiceConfig
}

// New creates a new Handler. s may be nil.
func New(s *store.Store, d recognizer.Detector, cfg model.ServiceConfig) *Handler {
	if cfg.DefaultQuestions == 0 {
		cfg.DefaultQuestions = 100
	}
	return &Handler{store: s, detector: d, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api/omr", func(r chi.Router) {
		r.Get("/", h.handleUploadPage)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAPIKey)
			r.Post("/score", h.handleScore)
			if h.store != nil {
				r.Get("/runs", h.handleListRuns)
				r.Get("/runs/{runID}", h.handleGetRun)
			}
		})
	})
}

func (h *Handler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.UploadPage(h.config.DefaultQuestions, omr.MaxQuestions).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Detector string `json:"detector"`
	History  bool   `json:"history"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Detector: h.detector.Name(),
		History:  h.store != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError sends the structured error body with a localized message.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	msg := appI18n.Td(r.Context(), msgID, data)
	writeJSON(w, status, model.ErrorResponse{Status: model.StatusError, Message: msg})
}
