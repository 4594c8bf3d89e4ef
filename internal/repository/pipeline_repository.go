package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

type PipelineRepository interface {
	Create(ctx context.Context, p models.Pipeline) (models.Pipeline, error)
	Get(ctx context.Context, pipelineID int64) (models.Pipeline, error)
	// GetForUpdate locks the pipeline row for the rest of the enclosing
	// transaction. Terminal reports for steps of the same pipeline serialize
	// on this lock, so the cursor can never advance twice for one report.
	GetForUpdate(ctx context.Context, pipelineID int64) (models.Pipeline, error)
	GetByJobExecution(ctx context.Context, jobExecutionID int64) (models.Pipeline, error)
	AdvanceCursor(ctx context.Context, pipelineID int64, taskNumber int) error
	Finish(ctx context.Context, pipelineID int64, status models.ExecStatus, errorMessage *string) error

	CreateStep(ctx context.Context, step models.PipelineStep) (models.PipelineStep, error)
	GetStep(ctx context.Context, stepID int64) (models.PipelineStep, error)
	ListSteps(ctx context.Context, pipelineID int64) ([]models.PipelineStep, error)
	FinishStep(ctx context.Context, stepID int64, status models.ExecStatus, errorMessage *string) error
}

type pipelineRepository struct {
	q DBTX
}

func (r *pipelineRepository) Create(ctx context.Context, p models.Pipeline) (models.Pipeline, error) {
	taskList, err := json.Marshal(p.TaskList)
	if err != nil {
		return p, apperr.Wrap(apperr.Validation, err, "encode task list")
	}
	err = r.q.QueryRowContext(ctx, `
		INSERT INTO pipelines (job_execution_id, task_list, total_task_count, current_running_task_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING pipeline_id, start_time`,
		p.JobExecutionID, taskList, p.TotalTaskCount, p.CurrentRunningTaskNumber, p.Status,
	).Scan(&p.PipelineID, &p.StartTime)
	if err != nil {
		return p, apperr.Wrap(apperr.Storage, err, "insert pipeline")
	}
	return p, nil
}

const pipelineColumns = `pipeline_id, job_execution_id, task_list, total_task_count,
	current_running_task_number, start_time, end_time, status, error_message`

func scanPipeline(row interface{ Scan(...any) error }) (models.Pipeline, error) {
	var p models.Pipeline
	var taskList []byte
	err := row.Scan(&p.PipelineID, &p.JobExecutionID, &taskList, &p.TotalTaskCount,
		&p.CurrentRunningTaskNumber, &p.StartTime, &p.EndTime, &p.Status, &p.ErrorMessage)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(taskList, &p.TaskList); err != nil {
		return p, err
	}
	return p, nil
}

func (r *pipelineRepository) get(ctx context.Context, query string, arg any, what string) (models.Pipeline, error) {
	p, err := scanPipeline(r.q.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return p, apperr.New(apperr.NotFound, "pipeline for %s %v not found", what, arg)
	}
	if err != nil {
		return p, apperr.Wrap(apperr.Storage, err, "get pipeline")
	}
	return p, nil
}

func (r *pipelineRepository) Get(ctx context.Context, pipelineID int64) (models.Pipeline, error) {
	return r.get(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE pipeline_id = $1`, pipelineID, "id")
}

func (r *pipelineRepository) GetForUpdate(ctx context.Context, pipelineID int64) (models.Pipeline, error) {
	return r.get(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE pipeline_id = $1 FOR UPDATE`, pipelineID, "id")
}

func (r *pipelineRepository) GetByJobExecution(ctx context.Context, jobExecutionID int64) (models.Pipeline, error) {
	return r.get(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE job_execution_id = $1`, jobExecutionID, "job execution")
}

func (r *pipelineRepository) AdvanceCursor(ctx context.Context, pipelineID int64, taskNumber int) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE pipelines SET current_running_task_number = $1 WHERE pipeline_id = $2`,
		taskNumber, pipelineID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "advance pipeline cursor")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "advance pipeline cursor")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "pipeline %d not found", pipelineID)
	}
	return nil
}

func (r *pipelineRepository) Finish(ctx context.Context, pipelineID int64, status models.ExecStatus, errorMessage *string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE pipelines SET status = $1, end_time = NOW(), error_message = $2
		WHERE pipeline_id = $3`,
		status, errorMessage, pipelineID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish pipeline")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish pipeline")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "pipeline %d not found", pipelineID)
	}
	return nil
}

func (r *pipelineRepository) CreateStep(ctx context.Context, step models.PipelineStep) (models.PipelineStep, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO pipeline_steps (pipeline_id, task_number, task_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING step_id, start_time`,
		step.PipelineID, step.TaskNumber, step.TaskType, step.Status,
	).Scan(&step.StepID, &step.StartTime)
	if err != nil {
		return step, apperr.Wrap(apperr.Storage, err, "insert pipeline step")
	}
	return step, nil
}

const stepColumns = `step_id, pipeline_id, task_number, task_type, start_time, end_time, status, error_message`

func scanStep(row interface{ Scan(...any) error }) (models.PipelineStep, error) {
	var s models.PipelineStep
	err := row.Scan(&s.StepID, &s.PipelineID, &s.TaskNumber, &s.TaskType,
		&s.StartTime, &s.EndTime, &s.Status, &s.ErrorMessage)
	return s, err
}

func (r *pipelineRepository) GetStep(ctx context.Context, stepID int64) (models.PipelineStep, error) {
	s, err := scanStep(r.q.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM pipeline_steps WHERE step_id = $1`, stepID))
	if err == sql.ErrNoRows {
		return s, apperr.New(apperr.NotFound, "pipeline step %d not found", stepID)
	}
	if err != nil {
		return s, apperr.Wrap(apperr.Storage, err, "get pipeline step")
	}
	return s, nil
}

func (r *pipelineRepository) ListSteps(ctx context.Context, pipelineID int64) ([]models.PipelineStep, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM pipeline_steps WHERE pipeline_id = $1 ORDER BY task_number`, pipelineID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list pipeline steps")
	}
	defer rows.Close()

	steps := []models.PipelineStep{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "scan pipeline step")
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list pipeline steps")
	}
	return steps, nil
}

func (r *pipelineRepository) FinishStep(ctx context.Context, stepID int64, status models.ExecStatus, errorMessage *string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE pipeline_steps SET status = $1, end_time = NOW(), error_message = $2
		WHERE step_id = $3`,
		status, errorMessage, stepID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish pipeline step")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish pipeline step")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "pipeline step %d not found", stepID)
	}
	return nil
}
