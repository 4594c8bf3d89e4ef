package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docc-labs/docc-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(
	conn *handlers.ConnectionHandler,
	meta *handlers.MetadataHandler,
	job *handlers.JobHandler,
	task *handlers.TaskUnitHandler,
	pipeline *handlers.PipelineHandler,
	join *handlers.JoinHandler,
	dashboard *handlers.DashboardHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Connection registry
	router.HandleFunc("/connections", conn.Create).Methods(http.MethodPost)
	router.HandleFunc("/connections", conn.List).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}", conn.Get).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}", conn.Update).Methods(http.MethodPut)
	router.HandleFunc("/connections/{id}", conn.Delete).Methods(http.MethodDelete)

	// Schema introspection
	router.HandleFunc("/connections/{id}/tables", meta.Tables).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}/tables/metadata", meta.Metadata).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}/tables/{table}/unique-identifiers", meta.UniqueIdentifiers).Methods(http.MethodGet)
	router.HandleFunc("/connections/{id}/tables/{table}/data", meta.Data).Methods(http.MethodPost)

	// Jobs and executions
	router.HandleFunc("/jobs", job.Create).Methods(http.MethodPost)
	router.HandleFunc("/jobs", job.List).Methods(http.MethodGet)
	router.HandleFunc("/jobs/pipelines/{job_execution_id}", pipeline.GetByExecution).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}", job.Get).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}/start", job.Start).Methods(http.MethodPost)

	// Task unit callbacks and reads
	router.HandleFunc("/taskunits", task.List).Methods(http.MethodGet)
	router.HandleFunc("/taskunits/{id}", task.Get).Methods(http.MethodGet)
	router.HandleFunc("/taskunits/{id}/completed", task.Completed).Methods(http.MethodPatch)
	router.HandleFunc("/taskunits/{id}/failed", task.Failed).Methods(http.MethodPatch)

	// Pipelines
	router.HandleFunc("/pipelines/{id}", pipeline.Get).Methods(http.MethodGet)
	router.HandleFunc("/pipelines/{id}/steps", pipeline.Steps).Methods(http.MethodGet)

	// Query materializer
	router.HandleFunc("/joins", join.Create).Methods(http.MethodPost)

	// Dashboard
	router.HandleFunc("/dashboard/stats", dashboard.Stats).Methods(http.MethodGet)
	router.HandleFunc("/dashboard/active-jobs", dashboard.ActiveJobs).Methods(http.MethodGet)

	return router
}
