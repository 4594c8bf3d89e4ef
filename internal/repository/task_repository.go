package repository

import (
	"context"
	"database/sql"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

type TaskRepository interface {
	Create(ctx context.Context, t models.TaskUnit) (models.TaskUnit, error)
	Get(ctx context.Context, taskUnitID int64) (models.TaskUnit, error)
	// GetForUpdate locks the task unit row, guarding the idempotence check
	// against a concurrent report for the same unit.
	GetForUpdate(ctx context.Context, taskUnitID int64) (models.TaskUnit, error)
	List(ctx context.Context, taskType *models.TaskType) ([]models.TaskUnit, error)
	Finish(ctx context.Context, taskUnitID int64, status models.TaskStatus, errorMessage *string) error

	LinkToJobExecution(ctx context.Context, taskUnitID, jobExecutionID int64) error
	LinkToPipelineStep(ctx context.Context, taskUnitID, stepID int64) error
	JobExecutionIDFor(ctx context.Context, taskUnitID int64) (int64, error)
	PipelineStepIDFor(ctx context.Context, taskUnitID int64) (int64, error)
}

type taskRepository struct {
	q DBTX
}

func (r *taskRepository) Create(ctx context.Context, t models.TaskUnit) (models.TaskUnit, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO task_units (task_type, called_by, status, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING task_unit_id, start_time`,
		t.TaskType, t.CalledBy, t.Status, []byte(t.Detail),
	).Scan(&t.TaskUnitID, &t.StartTime)
	if err != nil {
		return t, apperr.Wrap(apperr.Storage, err, "insert task unit")
	}
	return t, nil
}

const taskColumns = `task_unit_id, task_type, called_by, status, start_time, end_time, error_message, detail`

func scanTask(row interface{ Scan(...any) error }) (models.TaskUnit, error) {
	var t models.TaskUnit
	var detail []byte
	err := row.Scan(&t.TaskUnitID, &t.TaskType, &t.CalledBy, &t.Status,
		&t.StartTime, &t.EndTime, &t.ErrorMessage, &detail)
	t.Detail = detail
	return t, err
}

func (r *taskRepository) get(ctx context.Context, taskUnitID int64, lock string) (models.TaskUnit, error) {
	t, err := scanTask(r.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM task_units WHERE task_unit_id = $1`+lock, taskUnitID))
	if err == sql.ErrNoRows {
		return t, apperr.New(apperr.NotFound, "task unit %d not found", taskUnitID)
	}
	if err != nil {
		return t, apperr.Wrap(apperr.Storage, err, "get task unit")
	}
	return t, nil
}

func (r *taskRepository) Get(ctx context.Context, taskUnitID int64) (models.TaskUnit, error) {
	return r.get(ctx, taskUnitID, "")
}

func (r *taskRepository) GetForUpdate(ctx context.Context, taskUnitID int64) (models.TaskUnit, error) {
	return r.get(ctx, taskUnitID, " FOR UPDATE")
}

func (r *taskRepository) List(ctx context.Context, taskType *models.TaskType) ([]models.TaskUnit, error) {
	query := `SELECT ` + taskColumns + ` FROM task_units`
	args := []any{}
	if taskType != nil {
		query += ` WHERE task_type = $1`
		args = append(args, *taskType)
	}
	query += ` ORDER BY start_time DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list task units")
	}
	defer rows.Close()

	units := []models.TaskUnit{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "scan task unit")
		}
		units = append(units, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list task units")
	}
	return units, nil
}

func (r *taskRepository) Finish(ctx context.Context, taskUnitID int64, status models.TaskStatus, errorMessage *string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE task_units SET status = $1, end_time = NOW(), error_message = $2
		WHERE task_unit_id = $3`,
		status, errorMessage, taskUnitID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish task unit")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish task unit")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "task unit %d not found", taskUnitID)
	}
	return nil
}

func (r *taskRepository) LinkToJobExecution(ctx context.Context, taskUnitID, jobExecutionID int64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO task_unit_job_links (task_unit_id, job_execution_id) VALUES ($1, $2)`,
		taskUnitID, jobExecutionID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "link task unit to job execution")
	}
	return nil
}

func (r *taskRepository) LinkToPipelineStep(ctx context.Context, taskUnitID, stepID int64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO task_unit_pipeline_links (task_unit_id, step_id) VALUES ($1, $2)`,
		taskUnitID, stepID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "link task unit to pipeline step")
	}
	return nil
}

func (r *taskRepository) JobExecutionIDFor(ctx context.Context, taskUnitID int64) (int64, error) {
	var execID int64
	err := r.q.QueryRowContext(ctx,
		`SELECT job_execution_id FROM task_unit_job_links WHERE task_unit_id = $1`, taskUnitID,
	).Scan(&execID)
	if err == sql.ErrNoRows {
		return 0, apperr.New(apperr.NotFound, "no job execution linked to task unit %d", taskUnitID)
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, err, "resolve job execution link")
	}
	return execID, nil
}

func (r *taskRepository) PipelineStepIDFor(ctx context.Context, taskUnitID int64) (int64, error) {
	var stepID int64
	err := r.q.QueryRowContext(ctx,
		`SELECT step_id FROM task_unit_pipeline_links WHERE task_unit_id = $1`, taskUnitID,
	).Scan(&stepID)
	if err == sql.ErrNoRows {
		return 0, apperr.New(apperr.NotFound, "no pipeline step linked to task unit %d", taskUnitID)
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, err, "resolve pipeline step link")
	}
	return stepID, nil
}
