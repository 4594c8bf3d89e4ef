package models

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobIngestion      JobKind = "Ingestion"
	JobTransformation JobKind = "Transformation"
	JobPipeline       JobKind = "Pipeline"
)

func (k JobKind) Valid() bool {
	return k == JobIngestion || k == JobTransformation || k == JobPipeline
}

// ExecStatus is the lifecycle status shared by job executions, pipelines and
// pipeline steps. A row is terminal once it leaves Running.
type ExecStatus string

const (
	StatusRunning   ExecStatus = "Running"
	StatusCompleted ExecStatus = "Completed"
	StatusFailed    ExecStatus = "Failed"
)

func (s ExecStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the immutable definition of a unit of requested work. JobDetail is
// a single-key object keyed by JobType; for Pipeline jobs the value is the
// ordered task list, otherwise it is an opaque payload for the executor.
type Job struct {
	JobID        int64           `json:"job_id" db:"job_id"`
	JobName      string          `json:"job_name" db:"job_name"`
	JobType      JobKind         `json:"job_type" db:"job_type"`
	CreatedBy    string          `json:"created_by" db:"created_by"`
	CreationTime time.Time       `json:"creation_time" db:"creation_time"`
	JobDetail    json.RawMessage `json:"job_detail" db:"job_detail"`
}

type JobExecution struct {
	JobExecutionID int64      `json:"job_execution_id" db:"job_execution_id"`
	JobID          int64      `json:"job_id" db:"job_id"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        *time.Time `json:"end_time" db:"end_time"`
	Status         ExecStatus `json:"status" db:"status"`
	ErrorMessage   *string    `json:"error_message" db:"error_message"`
}

// JobWithExecutions is the full read model for a job: executions are ordered
// by start time descending, so the first entry is the latest status.
type JobWithExecutions struct {
	Job
	Executions []JobExecution `json:"job_executions"`
}

// JobSummary is the per-job entry of the grouped job listing.
type JobSummary struct {
	JobID         int64         `json:"job_id"`
	JobName       string        `json:"job_name"`
	JobType       JobKind       `json:"job_type"`
	LastExecution *JobExecution `json:"last_execution_status"`
}
