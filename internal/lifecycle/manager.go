// Package lifecycle implements the job execution state machine: starting
// jobs, advancing pipelines step by step and cascading terminal task unit
// reports up to their owning pipeline and job execution.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/metrics"
	"github.com/docc-labs/docc-api/internal/models"
	"github.com/docc-labs/docc-api/internal/repository"
)

type Manager struct {
	store  repository.Store
	logger zerolog.Logger
}

func NewManager(store repository.Store, logger zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

type CreateJobParams struct {
	Name      string          `json:"job_name"`
	Kind      models.JobKind  `json:"job_type"`
	CreatedBy string          `json:"created_by"`
	Detail    json.RawMessage `json:"job_detail"`
}

// CreateJob persists a new job definition. The job is not started; its
// detail shape is validated against the kind and then stored verbatim.
func (m *Manager) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	if p.Name == "" {
		return models.Job{}, apperr.New(apperr.Validation, "job name is required")
	}
	if !p.Kind.Valid() {
		return models.Job{}, apperr.New(apperr.Validation, "unsupported job type %q", string(p.Kind))
	}
	if err := validateDetail(p.Kind, p.Detail); err != nil {
		return models.Job{}, err
	}
	return m.store.Jobs().Create(ctx, models.Job{
		JobName:   p.Name,
		JobType:   p.Kind,
		CreatedBy: p.CreatedBy,
		JobDetail: p.Detail,
	})
}

// StartJob creates a Running execution for the job and eagerly materializes
// its first unit of work: a bare task unit for single-kind jobs, or a
// pipeline with step 1 for pipeline jobs. Fails with Conflict if an
// execution is already running.
func (m *Manager) StartJob(ctx context.Context, jobID int64) (models.JobExecution, error) {
	var exec models.JobExecution
	var kind models.JobKind

	err := m.inTxWithRetry(ctx, func(s repository.Store) error {
		job, err := s.Jobs().GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		kind = job.JobType

		running, err := s.Jobs().HasRunningExecution(ctx, jobID)
		if err != nil {
			return err
		}
		if running {
			return apperr.New(apperr.Conflict, "job %d is already running", jobID)
		}

		exec, err = s.Jobs().CreateExecution(ctx, jobID)
		if err != nil {
			return err
		}

		switch job.JobType {
		case models.JobIngestion, models.JobTransformation:
			payload, err := detailPayload(job.JobType, job.JobDetail)
			if err != nil {
				return err
			}
			unit, err := s.Tasks().Create(ctx, models.TaskUnit{
				TaskType: models.TaskType(job.JobType),
				CalledBy: models.CalledByJob,
				Status:   models.TaskInProgress,
				Detail:   payload,
			})
			if err != nil {
				return err
			}
			return s.Tasks().LinkToJobExecution(ctx, unit.TaskUnitID, exec.JobExecutionID)

		case models.JobPipeline:
			tasks, err := taskList(job.JobDetail)
			if err != nil {
				return err
			}
			pipeline, err := s.Pipelines().Create(ctx, models.Pipeline{
				JobExecutionID:           exec.JobExecutionID,
				TaskList:                 tasks,
				TotalTaskCount:           len(tasks),
				CurrentRunningTaskNumber: 1,
				Status:                   models.StatusRunning,
			})
			if err != nil {
				return err
			}
			return startStep(ctx, s, pipeline, 1)
		}
		return apperr.New(apperr.Validation, "unsupported job type %q", string(job.JobType))
	})
	if err != nil {
		return models.JobExecution{}, err
	}

	metrics.JobExecutionsTotal.WithLabelValues(string(kind), string(models.StatusRunning)).Inc()
	m.logger.Info().Int64("job_id", jobID).Int64("job_execution_id", exec.JobExecutionID).
		Str("job_type", string(kind)).Msg("job execution started")
	return exec, nil
}

// startStep creates the pipeline step row for task number n together with
// its in-progress task unit and link row. Steps are created lazily, one at a
// time, as the pipeline advances.
func startStep(ctx context.Context, s repository.Store, p models.Pipeline, n int) error {
	spec := p.TaskList[n-1]
	step, err := s.Pipelines().CreateStep(ctx, models.PipelineStep{
		PipelineID: p.PipelineID,
		TaskNumber: n,
		TaskType:   spec.Type,
		Status:     models.StatusRunning,
	})
	if err != nil {
		return err
	}
	unit, err := s.Tasks().Create(ctx, models.TaskUnit{
		TaskType: spec.Type,
		CalledBy: models.CalledByPipeline,
		Status:   models.TaskInProgress,
		Detail:   spec.Detail,
	})
	if err != nil {
		return err
	}
	return s.Tasks().LinkToPipelineStep(ctx, unit.TaskUnitID, step.StepID)
}

// ReportTerminal records the terminal outcome of a task unit and cascades it
// to whoever invoked the unit. All mutations of one report are applied in a
// single transaction; the task unit row lock plus the pipeline row lock
// serialize concurrent reports.
func (m *Manager) ReportTerminal(ctx context.Context, taskUnitID int64, outcome models.TaskStatus, errorMessage string) error {
	if outcome != models.TaskCompleted && outcome != models.TaskFailed {
		return apperr.New(apperr.Validation, "outcome must be Completed or Failed, got %q", string(outcome))
	}

	var taskType models.TaskType
	err := m.inTxWithRetry(ctx, func(s repository.Store) error {
		unit, err := s.Tasks().GetForUpdate(ctx, taskUnitID)
		if err != nil {
			return err
		}
		if unit.Status != models.TaskInProgress {
			return apperr.New(apperr.Conflict, "task unit %d is not in progress", taskUnitID)
		}
		taskType = unit.TaskType

		var unitMsg *string
		if outcome == models.TaskFailed {
			unitMsg = &errorMessage
		}
		if err := s.Tasks().Finish(ctx, taskUnitID, outcome, unitMsg); err != nil {
			return err
		}

		switch unit.CalledBy {
		case models.CalledByJob:
			return cascadeToJobExecution(ctx, s, unit, outcome, errorMessage)
		case models.CalledByPipeline:
			return cascadeToPipeline(ctx, s, unit, outcome, errorMessage)
		}
		return apperr.New(apperr.Storage, "task unit %d has unknown caller %q", taskUnitID, string(unit.CalledBy))
	})
	if err != nil {
		return err
	}

	metrics.TaskReportsTotal.WithLabelValues(string(taskType), string(outcome)).Inc()
	m.logger.Info().Int64("task_unit_id", taskUnitID).Str("outcome", string(outcome)).
		Msg("task unit terminal report accepted")
	return nil
}

// cascadeToJobExecution finishes the execution that directly owns the unit.
func cascadeToJobExecution(ctx context.Context, s repository.Store, unit models.TaskUnit, outcome models.TaskStatus, errorMessage string) error {
	execID, err := s.Tasks().JobExecutionIDFor(ctx, unit.TaskUnitID)
	if err != nil {
		return err
	}
	var msg *string
	if outcome == models.TaskFailed {
		m := fmt.Sprintf("%s failed: %s", strings.ToLower(string(unit.TaskType)), errorMessage)
		msg = &m
	}
	return s.Jobs().FinishExecution(ctx, execID, execStatus(outcome), msg)
}

// cascadeToPipeline finishes the step owning the unit and either fails the
// whole pipeline, advances the cursor and starts the next step, or finalizes
// the pipeline after its last step.
func cascadeToPipeline(ctx context.Context, s repository.Store, unit models.TaskUnit, outcome models.TaskStatus, errorMessage string) error {
	stepID, err := s.Tasks().PipelineStepIDFor(ctx, unit.TaskUnitID)
	if err != nil {
		return err
	}
	step, err := s.Pipelines().GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	pipeline, err := s.Pipelines().GetForUpdate(ctx, step.PipelineID)
	if err != nil {
		return err
	}

	var stepMsg *string
	if outcome == models.TaskFailed {
		stepMsg = &errorMessage
	}
	if err := s.Pipelines().FinishStep(ctx, stepID, execStatus(outcome), stepMsg); err != nil {
		return err
	}

	if outcome == models.TaskFailed {
		// Fail-fast: no further steps run, completed steps stay as they are.
		pipeMsg := fmt.Sprintf("Task %d failed: %s", step.TaskNumber, errorMessage)
		if err := s.Pipelines().Finish(ctx, pipeline.PipelineID, models.StatusFailed, &pipeMsg); err != nil {
			return err
		}
		execMsg := "pipeline " + pipeMsg
		return s.Jobs().FinishExecution(ctx, pipeline.JobExecutionID, models.StatusFailed, &execMsg)
	}

	if pipeline.CurrentRunningTaskNumber == pipeline.TotalTaskCount {
		if err := s.Pipelines().Finish(ctx, pipeline.PipelineID, models.StatusCompleted, nil); err != nil {
			return err
		}
		return s.Jobs().FinishExecution(ctx, pipeline.JobExecutionID, models.StatusCompleted, nil)
	}

	next := pipeline.CurrentRunningTaskNumber + 1
	if err := s.Pipelines().AdvanceCursor(ctx, pipeline.PipelineID, next); err != nil {
		return err
	}
	return startStep(ctx, s, pipeline, next)
}

func execStatus(outcome models.TaskStatus) models.ExecStatus {
	if outcome == models.TaskCompleted {
		return models.StatusCompleted
	}
	return models.StatusFailed
}

// inTxWithRetry runs fn in a transaction, retrying once when it fails at the
// storage layer. Domain errors are never retried.
func (m *Manager) inTxWithRetry(ctx context.Context, fn func(repository.Store) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := m.store.InTx(ctx, fn); err != nil {
			if apperr.IsKind(err, apperr.Storage) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// GetJob returns a job with all of its executions, most recent first.
func (m *Manager) GetJob(ctx context.Context, jobID int64) (models.JobWithExecutions, error) {
	job, err := m.store.Jobs().Get(ctx, jobID)
	if err != nil {
		return models.JobWithExecutions{}, err
	}
	executions, err := m.store.Jobs().ListExecutions(ctx, jobID)
	if err != nil {
		return models.JobWithExecutions{}, err
	}
	return models.JobWithExecutions{Job: job, Executions: executions}, nil
}

// ListJobs returns all jobs grouped by kind, each with its latest execution
// status.
func (m *Manager) ListJobs(ctx context.Context) (map[models.JobKind][]models.JobSummary, error) {
	jobs, err := m.store.Jobs().List(ctx)
	if err != nil {
		return nil, err
	}
	grouped := map[models.JobKind][]models.JobSummary{
		models.JobIngestion:      {},
		models.JobTransformation: {},
		models.JobPipeline:       {},
	}
	for _, job := range jobs {
		latest, err := m.store.Jobs().LatestExecution(ctx, job.JobID)
		if err != nil {
			return nil, err
		}
		grouped[job.JobType] = append(grouped[job.JobType], models.JobSummary{
			JobID:         job.JobID,
			JobName:       job.JobName,
			JobType:       job.JobType,
			LastExecution: latest,
		})
	}
	return grouped, nil
}

// GetPipeline returns a pipeline and its steps by pipeline id.
func (m *Manager) GetPipeline(ctx context.Context, pipelineID int64) (models.PipelineWithSteps, error) {
	pipeline, err := m.store.Pipelines().Get(ctx, pipelineID)
	if err != nil {
		return models.PipelineWithSteps{}, err
	}
	return m.withSteps(ctx, pipeline)
}

// GetPipelineByExecution returns the pipeline owned by a job execution.
func (m *Manager) GetPipelineByExecution(ctx context.Context, jobExecutionID int64) (models.PipelineWithSteps, error) {
	pipeline, err := m.store.Pipelines().GetByJobExecution(ctx, jobExecutionID)
	if err != nil {
		return models.PipelineWithSteps{}, err
	}
	return m.withSteps(ctx, pipeline)
}

func (m *Manager) withSteps(ctx context.Context, pipeline models.Pipeline) (models.PipelineWithSteps, error) {
	steps, err := m.store.Pipelines().ListSteps(ctx, pipeline.PipelineID)
	if err != nil {
		return models.PipelineWithSteps{}, err
	}
	return models.PipelineWithSteps{Pipeline: pipeline, Steps: steps}, nil
}

// TaskUnitDetail is a task unit together with the record that invoked it.
type TaskUnitDetail struct {
	models.TaskUnit
	JobExecution *models.JobExecution `json:"job_execution,omitempty"`
	PipelineStep *models.PipelineStep `json:"pipeline_step,omitempty"`
}

// GetTaskUnit returns a task unit and resolves its caller through the link
// table matching its called_by tag.
func (m *Manager) GetTaskUnit(ctx context.Context, taskUnitID int64) (TaskUnitDetail, error) {
	unit, err := m.store.Tasks().Get(ctx, taskUnitID)
	if err != nil {
		return TaskUnitDetail{}, err
	}
	detail := TaskUnitDetail{TaskUnit: unit}

	switch unit.CalledBy {
	case models.CalledByJob:
		execID, err := m.store.Tasks().JobExecutionIDFor(ctx, taskUnitID)
		if err != nil {
			return TaskUnitDetail{}, err
		}
		exec, err := m.store.Jobs().GetExecution(ctx, execID)
		if err != nil {
			return TaskUnitDetail{}, err
		}
		detail.JobExecution = &exec
	case models.CalledByPipeline:
		stepID, err := m.store.Tasks().PipelineStepIDFor(ctx, taskUnitID)
		if err != nil {
			return TaskUnitDetail{}, err
		}
		step, err := m.store.Pipelines().GetStep(ctx, stepID)
		if err != nil {
			return TaskUnitDetail{}, err
		}
		detail.PipelineStep = &step
	}
	return detail, nil
}

// ListTaskUnits returns task units, optionally filtered by type.
func (m *Manager) ListTaskUnits(ctx context.Context, taskType *models.TaskType) ([]models.TaskUnit, error) {
	return m.store.Tasks().List(ctx, taskType)
}
