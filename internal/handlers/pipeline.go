package handlers

import (
	"net/http"

	"github.com/docc-labs/docc-api/internal/lifecycle"
)

type PipelineHandler struct {
	manager *lifecycle.Manager
}

func NewPipelineHandler(manager *lifecycle.Manager) *PipelineHandler {
	return &PipelineHandler{manager: manager}
}

func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	pipeline, err := h.manager.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline)
}

// GetByExecution looks up the pipeline spawned by a job execution.
func (h *PipelineHandler) GetByExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := pathID(r, "job_execution_id")
	if err != nil {
		writeError(w, err)
		return
	}
	pipeline, err := h.manager.GetPipelineByExecution(r.Context(), execID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline)
}

func (h *PipelineHandler) Steps(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	pipeline, err := h.manager.GetPipeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pipeline.Steps)
}
