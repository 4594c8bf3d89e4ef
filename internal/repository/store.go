package repository

import (
	"context"
	"database/sql"

	"github.com/docc-labs/docc-api/internal/apperr"
)

// DBTX is the common surface of *sql.DB and *sql.Tx. Every repository runs
// against it, so the same repository code serves both plain reads and
// transactional read-modify-write sequences.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the repositories over a single connection or transaction.
type Store interface {
	Connections() ConnectionRepository
	Jobs() JobRepository
	Pipelines() PipelineRepository
	Tasks() TaskRepository

	// InTx runs fn against a transaction-scoped Store. The transaction is
	// committed when fn returns nil and rolled back otherwise, so a multi-row
	// cascade is applied all-or-nothing. Nested calls reuse the transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}

type sqlStore struct {
	db *sql.DB // nil when this store is transaction-scoped
	q  DBTX
}

func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db, q: db}
}

func (s *sqlStore) Connections() ConnectionRepository { return &connectionRepository{q: s.q} }
func (s *sqlStore) Jobs() JobRepository               { return &jobRepository{q: s.q} }
func (s *sqlStore) Pipelines() PipelineRepository     { return &pipelineRepository{q: s.q} }
func (s *sqlStore) Tasks() TaskRepository             { return &taskRepository{q: s.q} }

func (s *sqlStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&sqlStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Storage, err, "commit transaction")
	}
	return nil
}
