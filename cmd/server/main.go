package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/docc-labs/docc-api/internal/config"
	"github.com/docc-labs/docc-api/internal/handlers"
	"github.com/docc-labs/docc-api/internal/introspect"
	"github.com/docc-labs/docc-api/internal/lifecycle"
	"github.com/docc-labs/docc-api/internal/materialize"
	"github.com/docc-labs/docc-api/internal/middleware"
	"github.com/docc-labs/docc-api/internal/migration"
	"github.com/docc-labs/docc-api/internal/repository"
	"github.com/docc-labs/docc-api/internal/routes"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.Logging(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{cfg.CORSOrigin}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type"}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	store := repository.NewStore(app.db)
	manager := lifecycle.NewManager(store, logger)
	inspector := introspect.New(app.config.Introspect.MetadataCacheTTL)

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Docker client")
	}
	runner := materialize.NewDockerRunner(dockerClient)
	materializer := materialize.NewClient(
		runner,
		app.config.Materializer.Container,
		app.config.Materializer.Bin,
		app.config.Materializer.ProjectDir,
		app.config.Materializer.Timeout,
		logger,
	)

	connHandler := handlers.NewConnectionHandler(store, inspector, logger)
	metaHandler := handlers.NewMetadataHandler(store, inspector)
	jobHandler := handlers.NewJobHandler(manager, logger)
	taskHandler := handlers.NewTaskUnitHandler(manager)
	pipelineHandler := handlers.NewPipelineHandler(manager)
	joinHandler := handlers.NewJoinHandler(store, materializer, logger)
	dashboardHandler := handlers.NewDashboardHandler(store)

	return routes.NewRouter(connHandler, metaHandler, jobHandler, taskHandler, pipelineHandler, joinHandler, dashboardHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
