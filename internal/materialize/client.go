package materialize

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/metrics"
	"github.com/docc-labs/docc-api/internal/models"
)

// Result carries back what a materialization run produced: the SQL model
// that was generated and the raw tool output.
type Result struct {
	GeneratedQuery string `json:"generated_query"`
	Success        bool   `json:"success"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
}

// Client drives the transformation tool living in a long-running container
// to materialize join queries as tables or views on a source database.
type Client struct {
	runner     Runner
	container  string
	bin        string
	projectDir string
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewClient(runner Runner, containerName, bin, projectDir string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		runner:     runner,
		container:  containerName,
		bin:        bin,
		projectDir: projectDir,
		timeout:    timeout,
		logger:     logger.With().Str("component", "materializer").Logger(),
	}
}

// Materialize renders the join spec into a model, ships it together with an
// ephemeral profile into the tool container and runs the tool against the
// given connection's database. The spec must already be validated.
func (c *Client) Materialize(ctx context.Context, conn models.Connection, spec *JoinSpec) (*Result, error) {
	query := spec.BuildQuery()

	profile, err := buildProfile(conn)
	if err != nil {
		metrics.MaterializerRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// Per-run scratch directory so concurrent runs never share a profile.
	runDir := path.Join("/tmp/docc", uuid.NewString())
	if _, err := c.runner.Sh(ctx, c.container, fmt.Sprintf("mkdir -p %s", runDir)); err != nil {
		metrics.MaterializerRunsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.Tool, err, "prepare run directory")
	}

	modelFile := spec.NewTable + ".sql"
	if err := c.runner.CopyTo(ctx, c.container, path.Join(c.projectDir, "models"), []byte(query), modelFile); err != nil {
		metrics.MaterializerRunsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.Tool, err, "copy model file")
	}
	if err := c.runner.CopyTo(ctx, c.container, runDir, profile, "profiles.yml"); err != nil {
		metrics.MaterializerRunsTotal.WithLabelValues("error").Inc()
		return nil, apperr.Wrap(apperr.Tool, err, "copy profile")
	}

	cmd := fmt.Sprintf("%s run --select %s --profiles-dir %s --target %s",
		c.bin, spec.NewTable, runDir, targetName(conn))

	c.logger.Info().
		Str("table", spec.NewTable).
		Int64("connection_id", conn.ID).
		Msg("running materializer")

	res, err := c.runner.Sh(ctx, c.container, cmd,
		WithWorkDir(c.projectDir),
		WithTimeout(c.timeout),
	)
	if err != nil {
		metrics.MaterializerRunsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.New(apperr.Tool, "materializer timed out after %s", c.timeout)
		}
		return nil, apperr.Wrap(apperr.Tool, err, "run materializer")
	}

	result := &Result{
		GeneratedQuery: query,
		Success:        res.ExitCode == 0,
		Stdout:         res.Stdout,
		Stderr:         res.Stderr,
	}
	if result.Success {
		metrics.MaterializerRunsTotal.WithLabelValues("success").Inc()
	} else {
		metrics.MaterializerRunsTotal.WithLabelValues("failure").Inc()
		c.logger.Warn().
			Str("table", spec.NewTable).
			Int("exit_code", res.ExitCode).
			Msg("materializer run failed")
	}
	return result, nil
}
