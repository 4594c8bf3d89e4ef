package migration

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Run applies all pending schema migrations against the bookkeeping store.
func Run(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(newGooseAdapter(logger))

	if err := goose.Up(db, "migrations"); err != nil {
		return err
	}
	logger.Info().Msg("migrations up to date")
	return nil
}

// gooseAdapter routes goose output through zerolog.
type gooseAdapter struct {
	logger zerolog.Logger
}

func newGooseAdapter(logger zerolog.Logger) *gooseAdapter {
	return &gooseAdapter{logger: logger}
}

func (a *gooseAdapter) Fatalf(format string, v ...any) {
	a.logger.Fatal().Msgf(format, v...)
}

func (a *gooseAdapter) Printf(format string, v ...any) {
	a.logger.Info().Msgf(format, v...)
}
