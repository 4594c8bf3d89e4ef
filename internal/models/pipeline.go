package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskType string

const (
	TaskIngestion      TaskType = "Ingestion"
	TaskTransformation TaskType = "Transformation"
)

func (t TaskType) Valid() bool {
	return t == TaskIngestion || t == TaskTransformation
}

// TaskSpec is one entry of a pipeline task list. On the wire it is a
// single-key object, e.g. {"Ingestion": <opaque detail>}; the detail is
// never interpreted by this system.
type TaskSpec struct {
	Type   TaskType
	Detail json.RawMessage
}

func (s *TaskSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("task spec must have exactly one key, got %d", len(raw))
	}
	for key, detail := range raw {
		t := TaskType(key)
		if !t.Valid() {
			return fmt.Errorf("unknown task type %q", key)
		}
		s.Type = t
		s.Detail = detail
	}
	return nil
}

func (s TaskSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage{string(s.Type): s.Detail})
}

// Pipeline tracks the ordered execution of a multi-step job. The cursor
// (CurrentRunningTaskNumber) is 1-based and only moves forward.
type Pipeline struct {
	PipelineID               int64      `json:"pipeline_id" db:"pipeline_id"`
	JobExecutionID           int64      `json:"job_execution_id" db:"job_execution_id"`
	TaskList                 []TaskSpec `json:"task_list" db:"task_list"`
	TotalTaskCount           int        `json:"total_task_count" db:"total_task_count"`
	CurrentRunningTaskNumber int        `json:"current_running_task_number" db:"current_running_task_number"`
	StartTime                time.Time  `json:"start_time" db:"start_time"`
	EndTime                  *time.Time `json:"end_time" db:"end_time"`
	Status                   ExecStatus `json:"status" db:"status"`
	ErrorMessage             *string    `json:"error_message" db:"error_message"`
}

// PipelineStep is the execution record for one task list position. Steps are
// created lazily: the row for task N exists only once task N-1 completed.
type PipelineStep struct {
	StepID       int64      `json:"step_id" db:"step_id"`
	PipelineID   int64      `json:"pipeline_id" db:"pipeline_id"`
	TaskNumber   int        `json:"task_number" db:"task_number"`
	TaskType     TaskType   `json:"task_type" db:"task_type"`
	StartTime    time.Time  `json:"start_time" db:"start_time"`
	EndTime      *time.Time `json:"end_time" db:"end_time"`
	Status       ExecStatus `json:"status" db:"status"`
	ErrorMessage *string    `json:"error_message" db:"error_message"`
}

type PipelineWithSteps struct {
	Pipeline
	Steps []PipelineStep `json:"steps"`
}
