package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/store"
)

const defaultRunsLimit = 50

type runsResponse struct {
	Status string             `json:"status"`
	Count  int                `json:"count"`
	Runs   []model.RunSummary `json:"runs"`
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "ErrLimit", nil)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Status: model.StatusSuccess, Count: len(runs), Runs: runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "ErrRunNotFound", nil)
		return
	}
	if err != nil {
		slog.Error("get run", "run_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", nil)
		return
	}
	writeJSON(w, http.StatusOK, run.Response())
}
