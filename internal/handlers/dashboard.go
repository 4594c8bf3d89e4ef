package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/repository"
)

type DashboardHandler struct {
	store repository.Store
}

func NewDashboardHandler(store repository.Store) *DashboardHandler {
	return &DashboardHandler{store: store}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperr.New(apperr.Validation, "invalid days %q", raw))
			return
		}
		days = n
	}
	stats, err := h.store.Jobs().ExecutionStats(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ActiveJobs reports how many distinct jobs had an execution start within
// the last seven days.
func (h *DashboardHandler) ActiveJobs(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, 0, -7)
	count, err := h.store.Jobs().ActiveJobCount(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active_jobs": count})
}
