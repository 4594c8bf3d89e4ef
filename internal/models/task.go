package models

import (
	"encoding/json"
	"time"
)

// CalledBy tags which parent drives a task unit. It replaces the original
// relationship inheritance with an explicit discriminator plus one link
// table per parent kind.
type CalledBy string

const (
	CalledByJob      CalledBy = "Job"
	CalledByPipeline CalledBy = "Pipeline"
)

type TaskStatus string

const (
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted  TaskStatus = "Completed"
	TaskFailed     TaskStatus = "Failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskUnit is an atomic ingestion or transformation work item. Detail is an
// opaque payload interpreted by the external executor only.
type TaskUnit struct {
	TaskUnitID   int64           `json:"task_unit_id" db:"task_unit_id"`
	TaskType     TaskType        `json:"task_type" db:"task_type"`
	CalledBy     CalledBy        `json:"called_by" db:"called_by"`
	Status       TaskStatus      `json:"status" db:"status"`
	StartTime    time.Time       `json:"start_time" db:"start_time"`
	EndTime      *time.Time      `json:"end_time" db:"end_time"`
	ErrorMessage *string         `json:"error_message" db:"error_message"`
	Detail       json.RawMessage `json:"detail" db:"detail"`
}
