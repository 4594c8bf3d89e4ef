package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/lifecycle"
)

type JobHandler struct {
	manager *lifecycle.Manager
	logger  zerolog.Logger
}

func NewJobHandler(manager *lifecycle.Manager, logger zerolog.Logger) *JobHandler {
	return &JobHandler{manager: manager, logger: logger}
}

func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var params lifecycle.CreateJobParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}
	job, err := h.manager.CreateJob(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info().Int64("job_id", job.JobID).Str("job_type", string(job.JobType)).Msg("job created")
	writeJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.manager.ListJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := h.manager.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	exec, err := h.manager.StartJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}
