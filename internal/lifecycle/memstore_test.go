package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
	"github.com/docc-labs/docc-api/internal/repository"
)

// memStore is an in-memory repository.Store. It keeps the same error
// semantics as the SQL store so manager tests exercise real behavior.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	jobs       map[int64]models.Job
	executions map[int64]models.JobExecution
	pipelines  map[int64]models.Pipeline
	steps      map[int64]models.PipelineStep
	tasks      map[int64]models.TaskUnit

	taskToExec map[int64]int64
	taskToStep map[int64]int64
}

func newMemStore() *memStore {
	return &memStore{
		jobs:       map[int64]models.Job{},
		executions: map[int64]models.JobExecution{},
		pipelines:  map[int64]models.Pipeline{},
		steps:      map[int64]models.PipelineStep{},
		tasks:      map[int64]models.TaskUnit{},
		taskToExec: map[int64]int64{},
		taskToStep: map[int64]int64{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Connections() repository.ConnectionRepository { return nil }
func (m *memStore) Jobs() repository.JobRepository               { return (*memJobs)(m) }
func (m *memStore) Pipelines() repository.PipelineRepository     { return (*memPipelines)(m) }
func (m *memStore) Tasks() repository.TaskRepository             { return (*memTasks)(m) }

// InTx serializes callers the way the SQL store's row locks do, so
// concurrent state transitions see each other's committed writes.
func (m *memStore) InTx(_ context.Context, fn func(repository.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

type memJobs memStore

func (m *memJobs) Create(_ context.Context, job models.Job) (models.Job, error) {
	job.JobID = (*memStore)(m).id()
	job.CreationTime = time.Now().UTC()
	m.jobs[job.JobID] = job
	return job, nil
}

func (m *memJobs) Get(_ context.Context, jobID int64) (models.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return models.Job{}, apperr.New(apperr.NotFound, "job %d not found", jobID)
	}
	return job, nil
}

func (m *memJobs) GetForUpdate(ctx context.Context, jobID int64) (models.Job, error) {
	return m.Get(ctx, jobID)
}

func (m *memJobs) List(_ context.Context) ([]models.Job, error) {
	out := make([]models.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (m *memJobs) HasRunningExecution(_ context.Context, jobID int64) (bool, error) {
	for _, exec := range m.executions {
		if exec.JobID == jobID && exec.Status == models.StatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (m *memJobs) CreateExecution(_ context.Context, jobID int64) (models.JobExecution, error) {
	exec := models.JobExecution{
		JobExecutionID: (*memStore)(m).id(),
		JobID:          jobID,
		StartTime:      time.Now().UTC(),
		Status:         models.StatusRunning,
	}
	m.executions[exec.JobExecutionID] = exec
	return exec, nil
}

func (m *memJobs) GetExecution(_ context.Context, execID int64) (models.JobExecution, error) {
	exec, ok := m.executions[execID]
	if !ok {
		return models.JobExecution{}, apperr.New(apperr.NotFound, "job execution %d not found", execID)
	}
	return exec, nil
}

func (m *memJobs) ListExecutions(_ context.Context, jobID int64) ([]models.JobExecution, error) {
	out := []models.JobExecution{}
	for _, exec := range m.executions {
		if exec.JobID == jobID {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JobExecutionID > out[j].JobExecutionID
	})
	return out, nil
}

func (m *memJobs) LatestExecution(ctx context.Context, jobID int64) (*models.JobExecution, error) {
	execs, err := m.ListExecutions(ctx, jobID)
	if err != nil || len(execs) == 0 {
		return nil, err
	}
	return &execs[0], nil
}

func (m *memJobs) FinishExecution(_ context.Context, execID int64, status models.ExecStatus, errorMessage *string) error {
	exec, ok := m.executions[execID]
	if !ok {
		return apperr.New(apperr.NotFound, "job execution %d not found", execID)
	}
	now := time.Now().UTC()
	exec.Status = status
	exec.EndTime = &now
	exec.ErrorMessage = errorMessage
	m.executions[execID] = exec
	return nil
}

func (m *memJobs) ExecutionStats(_ context.Context, _ int) (models.ExecutionStat, error) {
	return models.ExecutionStat{}, nil
}

func (m *memJobs) ActiveJobCount(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

type memPipelines memStore

func (m *memPipelines) Create(_ context.Context, p models.Pipeline) (models.Pipeline, error) {
	p.PipelineID = (*memStore)(m).id()
	p.StartTime = time.Now().UTC()
	m.pipelines[p.PipelineID] = p
	return p, nil
}

func (m *memPipelines) Get(_ context.Context, pipelineID int64) (models.Pipeline, error) {
	p, ok := m.pipelines[pipelineID]
	if !ok {
		return models.Pipeline{}, apperr.New(apperr.NotFound, "pipeline %d not found", pipelineID)
	}
	return p, nil
}

func (m *memPipelines) GetForUpdate(ctx context.Context, pipelineID int64) (models.Pipeline, error) {
	return m.Get(ctx, pipelineID)
}

func (m *memPipelines) GetByJobExecution(_ context.Context, jobExecutionID int64) (models.Pipeline, error) {
	for _, p := range m.pipelines {
		if p.JobExecutionID == jobExecutionID {
			return p, nil
		}
	}
	return models.Pipeline{}, apperr.New(apperr.NotFound, "no pipeline for job execution %d", jobExecutionID)
}

func (m *memPipelines) AdvanceCursor(_ context.Context, pipelineID int64, taskNumber int) error {
	p, ok := m.pipelines[pipelineID]
	if !ok {
		return apperr.New(apperr.NotFound, "pipeline %d not found", pipelineID)
	}
	p.CurrentRunningTaskNumber = taskNumber
	m.pipelines[pipelineID] = p
	return nil
}

func (m *memPipelines) Finish(_ context.Context, pipelineID int64, status models.ExecStatus, errorMessage *string) error {
	p, ok := m.pipelines[pipelineID]
	if !ok {
		return apperr.New(apperr.NotFound, "pipeline %d not found", pipelineID)
	}
	now := time.Now().UTC()
	p.Status = status
	p.EndTime = &now
	p.ErrorMessage = errorMessage
	m.pipelines[pipelineID] = p
	return nil
}

func (m *memPipelines) CreateStep(_ context.Context, step models.PipelineStep) (models.PipelineStep, error) {
	step.StepID = (*memStore)(m).id()
	step.StartTime = time.Now().UTC()
	m.steps[step.StepID] = step
	return step, nil
}

func (m *memPipelines) GetStep(_ context.Context, stepID int64) (models.PipelineStep, error) {
	step, ok := m.steps[stepID]
	if !ok {
		return models.PipelineStep{}, apperr.New(apperr.NotFound, "pipeline step %d not found", stepID)
	}
	return step, nil
}

func (m *memPipelines) ListSteps(_ context.Context, pipelineID int64) ([]models.PipelineStep, error) {
	out := []models.PipelineStep{}
	for _, step := range m.steps {
		if step.PipelineID == pipelineID {
			out = append(out, step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskNumber < out[j].TaskNumber })
	return out, nil
}

func (m *memPipelines) FinishStep(_ context.Context, stepID int64, status models.ExecStatus, errorMessage *string) error {
	step, ok := m.steps[stepID]
	if !ok {
		return apperr.New(apperr.NotFound, "pipeline step %d not found", stepID)
	}
	now := time.Now().UTC()
	step.Status = status
	step.EndTime = &now
	step.ErrorMessage = errorMessage
	m.steps[stepID] = step
	return nil
}

type memTasks memStore

func (m *memTasks) Create(_ context.Context, t models.TaskUnit) (models.TaskUnit, error) {
	t.TaskUnitID = (*memStore)(m).id()
	t.StartTime = time.Now().UTC()
	m.tasks[t.TaskUnitID] = t
	return t, nil
}

func (m *memTasks) Get(_ context.Context, taskUnitID int64) (models.TaskUnit, error) {
	t, ok := m.tasks[taskUnitID]
	if !ok {
		return models.TaskUnit{}, apperr.New(apperr.NotFound, "task unit %d not found", taskUnitID)
	}
	return t, nil
}

func (m *memTasks) GetForUpdate(ctx context.Context, taskUnitID int64) (models.TaskUnit, error) {
	return m.Get(ctx, taskUnitID)
}

func (m *memTasks) List(_ context.Context, taskType *models.TaskType) ([]models.TaskUnit, error) {
	out := []models.TaskUnit{}
	for _, t := range m.tasks {
		if taskType == nil || t.TaskType == *taskType {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskUnitID < out[j].TaskUnitID })
	return out, nil
}

func (m *memTasks) Finish(_ context.Context, taskUnitID int64, status models.TaskStatus, errorMessage *string) error {
	t, ok := m.tasks[taskUnitID]
	if !ok {
		return apperr.New(apperr.NotFound, "task unit %d not found", taskUnitID)
	}
	now := time.Now().UTC()
	t.Status = status
	t.EndTime = &now
	t.ErrorMessage = errorMessage
	m.tasks[taskUnitID] = t
	return nil
}

func (m *memTasks) LinkToJobExecution(_ context.Context, taskUnitID, jobExecutionID int64) error {
	m.taskToExec[taskUnitID] = jobExecutionID
	return nil
}

func (m *memTasks) LinkToPipelineStep(_ context.Context, taskUnitID, stepID int64) error {
	m.taskToStep[taskUnitID] = stepID
	return nil
}

func (m *memTasks) JobExecutionIDFor(_ context.Context, taskUnitID int64) (int64, error) {
	execID, ok := m.taskToExec[taskUnitID]
	if !ok {
		return 0, apperr.New(apperr.NotFound, "task unit %d has no job execution link", taskUnitID)
	}
	return execID, nil
}

func (m *memTasks) PipelineStepIDFor(_ context.Context, taskUnitID int64) (int64, error) {
	stepID, ok := m.taskToStep[taskUnitID]
	if !ok {
		return 0, apperr.New(apperr.NotFound, "task unit %d has no pipeline step link", taskUnitID)
	}
	return stepID, nil
}
