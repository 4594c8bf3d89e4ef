package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/lifecycle"
	"github.com/docc-labs/docc-api/internal/models"
)

type TaskUnitHandler struct {
	manager *lifecycle.Manager
}

func NewTaskUnitHandler(manager *lifecycle.Manager) *TaskUnitHandler {
	return &TaskUnitHandler{manager: manager}
}

type failedRequest struct {
	ErrorMessage string `json:"error_message"`
}

// Completed is the callback external workers hit when a unit of work
// succeeds. The terminal report cascades to the unit's caller.
func (h *TaskUnitHandler) Completed(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, models.TaskCompleted, "")
}

func (h *TaskUnitHandler) Failed(w http.ResponseWriter, r *http.Request) {
	var req failedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request payload"))
		return
	}
	if req.ErrorMessage == "" {
		writeError(w, apperr.New(apperr.Validation, "error_message is required"))
		return
	}
	h.report(w, r, models.TaskFailed, req.ErrorMessage)
}

func (h *TaskUnitHandler) report(w http.ResponseWriter, r *http.Request, outcome models.TaskStatus, errorMessage string) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.manager.ReportTerminal(r.Context(), id, outcome, errorMessage); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (h *TaskUnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.manager.GetTaskUnit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *TaskUnitHandler) List(w http.ResponseWriter, r *http.Request) {
	var taskType *models.TaskType
	if raw := r.URL.Query().Get("task_type"); raw != "" {
		t := models.TaskType(raw)
		if t != models.TaskIngestion && t != models.TaskTransformation {
			writeError(w, apperr.New(apperr.Validation, "unsupported task_type %q", raw))
			return
		}
		taskType = &t
	}
	units, err := h.manager.ListTaskUnits(r.Context(), taskType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}
