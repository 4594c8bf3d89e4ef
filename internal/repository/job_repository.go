package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, jobID int64) (models.Job, error)
	// GetForUpdate locks the job row for the rest of the enclosing
	// transaction. Start sequences for the same job serialize on this lock.
	GetForUpdate(ctx context.Context, jobID int64) (models.Job, error)
	List(ctx context.Context) ([]models.Job, error)

	HasRunningExecution(ctx context.Context, jobID int64) (bool, error)
	CreateExecution(ctx context.Context, jobID int64) (models.JobExecution, error)
	GetExecution(ctx context.Context, execID int64) (models.JobExecution, error)
	ListExecutions(ctx context.Context, jobID int64) ([]models.JobExecution, error)
	LatestExecution(ctx context.Context, jobID int64) (*models.JobExecution, error)
	FinishExecution(ctx context.Context, execID int64, status models.ExecStatus, errorMessage *string) error

	ExecutionStats(ctx context.Context, days int) (models.ExecutionStat, error)
	ActiveJobCount(ctx context.Context, since time.Time) (int, error)
}

type jobRepository struct {
	q DBTX
}

func (r *jobRepository) Create(ctx context.Context, job models.Job) (models.Job, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO jobs (job_name, job_type, created_by, job_detail)
		VALUES ($1, $2, $3, $4)
		RETURNING job_id, creation_time`,
		job.JobName, job.JobType, job.CreatedBy, []byte(job.JobDetail),
	).Scan(&job.JobID, &job.CreationTime)
	if err != nil {
		return job, apperr.Wrap(apperr.Storage, err, "insert job")
	}
	return job, nil
}

func scanJob(row interface{ Scan(...any) error }) (models.Job, error) {
	var j models.Job
	var detail []byte
	err := row.Scan(&j.JobID, &j.JobName, &j.JobType, &j.CreatedBy, &j.CreationTime, &detail)
	j.JobDetail = detail
	return j, err
}

func (r *jobRepository) get(ctx context.Context, jobID int64, lock string) (models.Job, error) {
	j, err := scanJob(r.q.QueryRowContext(ctx, `
		SELECT job_id, job_name, job_type, created_by, creation_time, job_detail
		FROM jobs WHERE job_id = $1`+lock, jobID))
	if err == sql.ErrNoRows {
		return j, apperr.New(apperr.NotFound, "job %d not found", jobID)
	}
	if err != nil {
		return j, apperr.Wrap(apperr.Storage, err, "get job")
	}
	return j, nil
}

func (r *jobRepository) Get(ctx context.Context, jobID int64) (models.Job, error) {
	return r.get(ctx, jobID, "")
}

func (r *jobRepository) GetForUpdate(ctx context.Context, jobID int64) (models.Job, error) {
	return r.get(ctx, jobID, " FOR UPDATE")
}

func (r *jobRepository) List(ctx context.Context) ([]models.Job, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT job_id, job_name, job_type, created_by, creation_time, job_detail
		FROM jobs ORDER BY creation_time DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list jobs")
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list jobs")
	}
	return jobs, nil
}

func (r *jobRepository) HasRunningExecution(ctx context.Context, jobID int64) (bool, error) {
	var running bool
	err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM job_executions WHERE job_id = $1 AND status = $2
		)`, jobID, models.StatusRunning).Scan(&running)
	if err != nil {
		return false, apperr.Wrap(apperr.Storage, err, "check running execution")
	}
	return running, nil
}

func (r *jobRepository) CreateExecution(ctx context.Context, jobID int64) (models.JobExecution, error) {
	exec := models.JobExecution{JobID: jobID, Status: models.StatusRunning}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO job_executions (job_id, status)
		VALUES ($1, $2)
		RETURNING job_execution_id, start_time`,
		jobID, exec.Status,
	).Scan(&exec.JobExecutionID, &exec.StartTime)
	if err != nil {
		return exec, apperr.Wrap(apperr.Storage, err, "insert job execution")
	}
	return exec, nil
}

const jobExecutionColumns = `job_execution_id, job_id, start_time, end_time, status, error_message`

func scanJobExecution(row interface{ Scan(...any) error }) (models.JobExecution, error) {
	var e models.JobExecution
	err := row.Scan(&e.JobExecutionID, &e.JobID, &e.StartTime, &e.EndTime, &e.Status, &e.ErrorMessage)
	return e, err
}

func (r *jobRepository) GetExecution(ctx context.Context, execID int64) (models.JobExecution, error) {
	e, err := scanJobExecution(r.q.QueryRowContext(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions WHERE job_execution_id = $1`, execID))
	if err == sql.ErrNoRows {
		return e, apperr.New(apperr.NotFound, "job execution %d not found", execID)
	}
	if err != nil {
		return e, apperr.Wrap(apperr.Storage, err, "get job execution")
	}
	return e, nil
}

func (r *jobRepository) ListExecutions(ctx context.Context, jobID int64) ([]models.JobExecution, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions WHERE job_id = $1 ORDER BY start_time DESC`, jobID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list job executions")
	}
	defer rows.Close()

	executions := []models.JobExecution{}
	for rows.Next() {
		e, err := scanJobExecution(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "scan job execution")
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list job executions")
	}
	return executions, nil
}

func (r *jobRepository) LatestExecution(ctx context.Context, jobID int64) (*models.JobExecution, error) {
	e, err := scanJobExecution(r.q.QueryRowContext(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions
		 WHERE job_id = $1 ORDER BY start_time DESC LIMIT 1`, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "latest job execution")
	}
	return &e, nil
}

func (r *jobRepository) FinishExecution(ctx context.Context, execID int64, status models.ExecStatus, errorMessage *string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE job_executions
		SET status = $1, end_time = NOW(), error_message = $2
		WHERE job_execution_id = $3`,
		status, errorMessage, execID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish job execution")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "finish job execution")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "job execution %d not found", execID)
	}
	return nil
}

func (r *jobRepository) ExecutionStats(ctx context.Context, days int) (models.ExecutionStat, error) {
	const perDayQuery = `
		WITH days AS (
			SELECT generate_series(
				(current_date - ($1 - 1) * INTERVAL '1 day'),
				current_date,
				'1 day'::INTERVAL
			) AS day
		)
		SELECT
			days.day,
			COALESCE(SUM((je.status = 'Completed')::int), 0) AS completed,
			COALESCE(SUM((je.status = 'Failed')::int), 0)    AS failed,
			COALESCE(SUM((je.status = 'Running')::int), 0)   AS running
		FROM days
		LEFT JOIN job_executions je ON je.start_time::DATE = days.day
		GROUP BY days.day
		ORDER BY days.day`

	rows, err := r.q.QueryContext(ctx, perDayQuery, days)
	if err != nil {
		return models.ExecutionStat{}, apperr.Wrap(apperr.Storage, err, "execution stats per day")
	}
	defer rows.Close()

	var perDay []models.ExecutionStatDay
	for rows.Next() {
		var d models.ExecutionStatDay
		if err := rows.Scan(&d.Day, &d.Completed, &d.Failed, &d.Running); err != nil {
			return models.ExecutionStat{}, apperr.Wrap(apperr.Storage, err, "scan execution stat")
		}
		perDay = append(perDay, d)
	}
	if err := rows.Err(); err != nil {
		return models.ExecutionStat{}, apperr.Wrap(apperr.Storage, err, "execution stats per day")
	}

	var stats models.ExecutionStat
	err = r.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM((status = 'Completed')::int), 0),
			COALESCE(SUM((status = 'Failed')::int), 0),
			COALESCE(SUM((status = 'Running')::int), 0)
		FROM job_executions`,
	).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Running)
	if err != nil {
		return models.ExecutionStat{}, apperr.Wrap(apperr.Storage, err, "execution stats totals")
	}

	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&stats.TotalJobs); err != nil {
		return models.ExecutionStat{}, apperr.Wrap(apperr.Storage, err, "execution stats job count")
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100.0
	}
	stats.PerDay = perDay
	return stats, nil
}

func (r *jobRepository) ActiveJobCount(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT job_id) FROM job_executions WHERE start_time > $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, err, "active job count")
	}
	return count, nil
}
