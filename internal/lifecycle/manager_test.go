package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

func newTestManager() (*Manager, *memStore) {
	store := newMemStore()
	return NewManager(store, zerolog.Nop()), store
}

var (
	ingestionDetail = json.RawMessage(`{"Ingestion":{"table":"users"}}`)
	pipelineDetail  = json.RawMessage(`{"Pipeline":[{"Ingestion":{"table":"users"}},{"Transformation":{"sql":"select 1"}}]}`)
)

func createJob(t *testing.T, m *Manager, kind models.JobKind, detail json.RawMessage) models.Job {
	t.Helper()
	job, err := m.CreateJob(context.Background(), CreateJobParams{
		Name:      "test job",
		Kind:      kind,
		CreatedBy: "tester",
		Detail:    detail,
	})
	require.NoError(t, err)
	return job
}

func TestCreateJobValidation(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	cases := []struct {
		name   string
		params CreateJobParams
	}{
		{"missing name", CreateJobParams{Kind: models.JobIngestion, Detail: ingestionDetail}},
		{"bad kind", CreateJobParams{Name: "j", Kind: "Sync", Detail: ingestionDetail}},
		{"detail not an object", CreateJobParams{Name: "j", Kind: models.JobIngestion, Detail: json.RawMessage(`[1]`)}},
		{"detail key mismatch", CreateJobParams{Name: "j", Kind: models.JobIngestion, Detail: json.RawMessage(`{"Transformation":{}}`)}},
		{"extra detail key", CreateJobParams{Name: "j", Kind: models.JobIngestion, Detail: json.RawMessage(`{"Ingestion":{},"Transformation":{}}`)}},
		{"empty pipeline", CreateJobParams{Name: "j", Kind: models.JobPipeline, Detail: json.RawMessage(`{"Pipeline":[]}`)}},
		{"pipeline with bad task key", CreateJobParams{Name: "j", Kind: models.JobPipeline, Detail: json.RawMessage(`{"Pipeline":[{"Cleanup":{}}]}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateJob(ctx, tc.params)
			assert.True(t, apperr.IsKind(err, apperr.Validation), "want validation error, got %v", err)
		})
	}
}

func TestStartIngestionJob(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)

	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, exec.Status)
	assert.Equal(t, job.JobID, exec.JobID)

	// Exactly one in-progress unit, invoked by the job, carrying the
	// unwrapped payload.
	units, err := m.ListTaskUnits(ctx, nil)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, models.TaskInProgress, units[0].Status)
	assert.Equal(t, models.CalledByJob, units[0].CalledBy)
	assert.Equal(t, models.TaskIngestion, units[0].TaskType)
	assert.JSONEq(t, `{"table":"users"}`, string(units[0].Detail))

	execID, err := store.Tasks().JobExecutionIDFor(ctx, units[0].TaskUnitID)
	require.NoError(t, err)
	assert.Equal(t, exec.JobExecutionID, execID)
}

func TestStartJobNotFound(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.StartJob(context.Background(), 42)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestStartJobAlreadyRunning(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)

	_, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	_, err = m.StartJob(ctx, job.JobID)
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "second start must conflict, got %v", err)
}

func TestConcurrentStartsYieldOneExecution(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)

	const starters = 2
	errs := make(chan error, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.StartJob(ctx, job.JobID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var started, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			started++
		case apperr.IsKind(err, apperr.Conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, starters-1, conflicts)

	detail, err := m.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Len(t, detail.Executions, 1)
}

func TestRestartAfterTerminal(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)

	_, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)
	units, _ := m.ListTaskUnits(ctx, nil)
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskCompleted, ""))

	// A finished job can run again.
	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, exec.Status)

	detail, err := m.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Len(t, detail.Executions, 2)
}

func TestReportCompletedCascadesToExecution(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)
	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	units, _ := m.ListTaskUnits(ctx, nil)
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskCompleted, ""))

	got, err := store.Jobs().GetExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)
	assert.Nil(t, got.ErrorMessage)
}

func TestReportFailedCascadesToExecution(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)
	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	units, _ := m.ListTaskUnits(ctx, nil)
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskFailed, "connection refused"))

	got, err := store.Jobs().GetExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "ingestion failed: connection refused", *got.ErrorMessage)

	unit, err := store.Tasks().Get(ctx, units[0].TaskUnitID)
	require.NoError(t, err)
	require.NotNil(t, unit.ErrorMessage)
	assert.Equal(t, "connection refused", *unit.ErrorMessage)
}

func TestReportTerminalValidation(t *testing.T) {
	m, _ := newTestManager()
	err := m.ReportTerminal(context.Background(), 1, models.TaskInProgress, "")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestReportTerminalIdempotence(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobIngestion, ingestionDetail)
	_, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	units, _ := m.ListTaskUnits(ctx, nil)
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskCompleted, ""))

	// A second report for the same unit is rejected, whatever the outcome.
	err = m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskFailed, "late failure")
	assert.True(t, apperr.IsKind(err, apperr.Conflict), "want conflict, got %v", err)
}

func TestPipelineAdvancesStepByStep(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobPipeline, pipelineDetail)

	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	// Start materializes the pipeline with only step 1.
	pw, err := m.GetPipelineByExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 2, pw.TotalTaskCount)
	assert.Equal(t, 1, pw.CurrentRunningTaskNumber)
	assert.Equal(t, models.StatusRunning, pw.Status)
	require.Len(t, pw.Steps, 1)
	assert.Equal(t, 1, pw.Steps[0].TaskNumber)
	assert.Equal(t, models.TaskIngestion, pw.Steps[0].TaskType)

	units, _ := m.ListTaskUnits(ctx, nil)
	require.Len(t, units, 1)
	assert.Equal(t, models.CalledByPipeline, units[0].CalledBy)

	// Completing step 1 advances the cursor and creates exactly one new
	// step and unit.
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskCompleted, ""))

	pw, err = m.GetPipeline(ctx, pw.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, 2, pw.CurrentRunningTaskNumber)
	assert.Equal(t, models.StatusRunning, pw.Status)
	require.Len(t, pw.Steps, 2)
	assert.Equal(t, models.StatusCompleted, pw.Steps[0].Status)
	assert.Equal(t, models.StatusRunning, pw.Steps[1].Status)
	assert.Equal(t, models.TaskTransformation, pw.Steps[1].TaskType)

	units, _ = m.ListTaskUnits(ctx, nil)
	require.Len(t, units, 2)
	assert.Equal(t, models.TaskInProgress, units[1].Status)
	assert.JSONEq(t, `{"sql":"select 1"}`, string(units[1].Detail))

	// Completing the last step finalizes pipeline and execution.
	require.NoError(t, m.ReportTerminal(ctx, units[1].TaskUnitID, models.TaskCompleted, ""))

	pw, err = m.GetPipeline(ctx, pw.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, pw.Status)
	assert.NotNil(t, pw.EndTime)
	require.Len(t, pw.Steps, 2)

	got, err := store.Jobs().GetExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	units, _ = m.ListTaskUnits(ctx, nil)
	assert.Len(t, units, 2, "no unit beyond the last step")
}

func TestPipelineFailsFast(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobPipeline, pipelineDetail)

	exec, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	units, _ := m.ListTaskUnits(ctx, nil)
	require.Len(t, units, 1)
	require.NoError(t, m.ReportTerminal(ctx, units[0].TaskUnitID, models.TaskFailed, "disk full"))

	pw, err := m.GetPipelineByExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, pw.Status)
	require.NotNil(t, pw.ErrorMessage)
	assert.Equal(t, "Task 1 failed: disk full", *pw.ErrorMessage)

	// Fail-fast: the cursor stays put and no step 2 exists.
	assert.Equal(t, 1, pw.CurrentRunningTaskNumber)
	require.Len(t, pw.Steps, 1)
	assert.Equal(t, models.StatusFailed, pw.Steps[0].Status)
	require.NotNil(t, pw.Steps[0].ErrorMessage)
	assert.Equal(t, "disk full", *pw.Steps[0].ErrorMessage)

	got, err := store.Jobs().GetExecution(ctx, exec.JobExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "pipeline Task 1 failed: disk full", *got.ErrorMessage)

	units, _ = m.ListTaskUnits(ctx, nil)
	assert.Len(t, units, 1, "no new unit after a failure")
}

func TestGetTaskUnitResolvesCaller(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	ingestion := createJob(t, m, models.JobIngestion, ingestionDetail)
	exec, err := m.StartJob(ctx, ingestion.JobID)
	require.NoError(t, err)

	units, _ := m.ListTaskUnits(ctx, nil)
	detail, err := m.GetTaskUnit(ctx, units[0].TaskUnitID)
	require.NoError(t, err)
	require.NotNil(t, detail.JobExecution)
	assert.Equal(t, exec.JobExecutionID, detail.JobExecution.JobExecutionID)
	assert.Nil(t, detail.PipelineStep)

	pipeline := createJob(t, m, models.JobPipeline, pipelineDetail)
	_, err = m.StartJob(ctx, pipeline.JobID)
	require.NoError(t, err)

	units, _ = m.ListTaskUnits(ctx, nil)
	require.Len(t, units, 2)
	detail, err = m.GetTaskUnit(ctx, units[1].TaskUnitID)
	require.NoError(t, err)
	require.NotNil(t, detail.PipelineStep)
	assert.Equal(t, 1, detail.PipelineStep.TaskNumber)
	assert.Nil(t, detail.JobExecution)
}

func TestListTaskUnitsFilter(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	job := createJob(t, m, models.JobPipeline, pipelineDetail)
	_, err := m.StartJob(ctx, job.JobID)
	require.NoError(t, err)

	ingestion := models.TaskIngestion
	units, err := m.ListTaskUnits(ctx, &ingestion)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, models.TaskIngestion, units[0].TaskType)

	transformation := models.TaskTransformation
	units, err = m.ListTaskUnits(ctx, &transformation)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestListJobsGroupsByKind(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	ingestion := createJob(t, m, models.JobIngestion, ingestionDetail)
	createJob(t, m, models.JobPipeline, pipelineDetail)
	_, err := m.StartJob(ctx, ingestion.JobID)
	require.NoError(t, err)

	grouped, err := m.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, grouped[models.JobIngestion], 1)
	require.Len(t, grouped[models.JobPipeline], 1)
	assert.Empty(t, grouped[models.JobTransformation])

	require.NotNil(t, grouped[models.JobIngestion][0].LastExecution)
	assert.Equal(t, models.StatusRunning, grouped[models.JobIngestion][0].LastExecution.Status)
	assert.Nil(t, grouped[models.JobPipeline][0].LastExecution, "never-started job has no execution")
}
