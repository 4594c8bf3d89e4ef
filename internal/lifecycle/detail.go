package lifecycle

import (
	"encoding/json"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

// detailPayload extracts the payload under the job kind key of a job detail
// document. A detail is always a single-key object keyed by the job kind:
//
//	{"Ingestion": <opaque>}
//	{"Transformation": <opaque>}
//	{"Pipeline": [{"Ingestion": <opaque>}, {"Transformation": <opaque>}, ...]}
func detailPayload(kind models.JobKind, detail json.RawMessage) (json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(detail, &raw); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "job detail is not a JSON object")
	}
	if len(raw) != 1 {
		return nil, apperr.New(apperr.Validation, "job detail must have exactly one key, got %d", len(raw))
	}
	payload, ok := raw[string(kind)]
	if !ok {
		return nil, apperr.New(apperr.Validation, "job detail key does not match job type %q", string(kind))
	}
	return payload, nil
}

// taskList parses the ordered task list of a pipeline job detail.
func taskList(detail json.RawMessage) ([]models.TaskSpec, error) {
	payload, err := detailPayload(models.JobPipeline, detail)
	if err != nil {
		return nil, err
	}
	var tasks []models.TaskSpec
	if err := json.Unmarshal(payload, &tasks); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "pipeline task list is malformed")
	}
	if len(tasks) == 0 {
		return nil, apperr.New(apperr.Validation, "pipeline task list must not be empty")
	}
	return tasks, nil
}

// validateDetail checks the shape of a job detail against its kind at
// creation time, before anything is persisted.
func validateDetail(kind models.JobKind, detail json.RawMessage) error {
	if kind == models.JobPipeline {
		_, err := taskList(detail)
		return err
	}
	_, err := detailPayload(kind, detail)
	return err
}
