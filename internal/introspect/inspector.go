// Package introspect reads live schema metadata (tables, columns, keys) and
// raw row pages from registered external databases. It never reaches into
// the bookkeeping store; callers hand it a Connection descriptor.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

type Inspector struct {
	cache *gocache.Cache
}

// New returns an Inspector that caches full table metadata per connection
// for metadataTTL.
func New(metadataTTL time.Duration) *Inspector {
	return &Inspector{cache: gocache.New(metadataTTL, 2*metadataTTL)}
}

func (in *Inspector) open(conn models.Connection) (*sql.DB, error) {
	driver, err := conn.Source.Driver()
	if err != nil {
		return nil, err
	}
	dsn, err := conn.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "open source connection")
	}
	return db, nil
}

// Probe attempts a live connection and reports failure without side effects.
func (in *Inspector) Probe(ctx context.Context, conn models.Connection) error {
	db, err := in.open(conn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return apperr.Wrap(apperr.Upstream, err, "source connection probe failed")
	}
	return nil
}

// Tables lists the base table names of the source database.
func (in *Inspector) Tables(ctx context.Context, conn models.Connection) ([]string, error) {
	db, err := in.open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return listTables(ctx, db, conn.Source)
}

func listTables(ctx context.Context, db *sql.DB, kind models.SourceKind) ([]string, error) {
	var query string
	switch kind {
	case models.SourcePostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name`
	case models.SourceMySQL:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "list source tables")
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(apperr.Upstream, err, "scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "list source tables")
	}
	return tables, nil
}

// Metadata returns the full metadata of every table in the source database,
// keyed by table name. Results are cached per connection.
func (in *Inspector) Metadata(ctx context.Context, conn models.Connection) (map[string]models.TableMetadata, error) {
	cacheKey := fmt.Sprintf("metadata:%d", conn.ID)
	if cached, ok := in.cache.Get(cacheKey); ok {
		return cached.(map[string]models.TableMetadata), nil
	}

	db, err := in.open(conn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tables, err := listTables(ctx, db, conn.Source)
	if err != nil {
		return nil, err
	}

	result := make(map[string]models.TableMetadata, len(tables))
	for _, table := range tables {
		meta, err := tableMetadata(ctx, db, conn.Source, table)
		if err != nil {
			return nil, err
		}
		result[table] = meta
	}

	in.cache.SetDefault(cacheKey, result)
	return result, nil
}

// UniqueIdentifiers returns the primary key columns and unique column groups
// of one table. NotFound if the table does not exist.
func (in *Inspector) UniqueIdentifiers(ctx context.Context, conn models.Connection, table string) (models.UniqueIdentifiers, error) {
	db, err := in.open(conn)
	if err != nil {
		return models.UniqueIdentifiers{}, err
	}
	defer db.Close()

	if err := requireTable(ctx, db, conn.Source, table); err != nil {
		return models.UniqueIdentifiers{}, err
	}
	primary, uniques, err := keyColumns(ctx, db, conn.Source, table)
	if err != nil {
		return models.UniqueIdentifiers{}, err
	}
	return models.UniqueIdentifiers{PrimaryKeyColumns: primary, UniqueColumnGroups: uniques}, nil
}

func requireTable(ctx context.Context, db *sql.DB, kind models.SourceKind, table string) error {
	tables, err := listTables(ctx, db, kind)
	if err != nil {
		return err
	}
	for _, name := range tables {
		if name == table {
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "table %q not found in source database", table)
}

func tableMetadata(ctx context.Context, db *sql.DB, kind models.SourceKind, table string) (models.TableMetadata, error) {
	meta := models.TableMetadata{Name: table}

	columns, err := tableColumns(ctx, db, kind, table)
	if err != nil {
		return meta, err
	}
	meta.Columns = columns

	primary, uniques, err := keyColumns(ctx, db, kind, table)
	if err != nil {
		return meta, err
	}
	meta.PrimaryKeys = primary
	meta.UniqueKeyGroups = uniques

	fks, err := foreignKeys(ctx, db, kind, table)
	if err != nil {
		return meta, err
	}
	meta.ForeignKeys = fks
	return meta, nil
}

func tableColumns(ctx context.Context, db *sql.DB, kind models.SourceKind, table string) ([]models.Column, error) {
	var query string
	switch kind {
	case models.SourcePostgres:
		query = `SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1
			ORDER BY ordinal_position`
	case models.SourceMySQL:
		query = `SELECT column_name, data_type, is_nullable, column_default
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	}
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "read table columns")
	}
	defer rows.Close()

	columns := []models.Column{}
	for rows.Next() {
		var col models.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Default); err != nil {
			return nil, apperr.Wrap(apperr.Upstream, err, "scan column")
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "read table columns")
	}
	return columns, nil
}

func keyColumns(ctx context.Context, db *sql.DB, kind models.SourceKind, table string) (primary []string, uniques [][]string, err error) {
	var query string
	switch kind {
	case models.SourcePostgres:
		query = `SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_name = kcu.table_name
			WHERE tc.table_schema = 'public' AND tc.table_name = $1
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			ORDER BY tc.constraint_name, kcu.ordinal_position`
	case models.SourceMySQL:
		query = `SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name AND tc.table_name = kcu.table_name
			WHERE tc.table_schema = DATABASE() AND tc.table_name = ?
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			ORDER BY tc.constraint_name, kcu.ordinal_position`
	}
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Upstream, err, "read key constraints")
	}
	defer rows.Close()

	primary = []string{}
	uniques = [][]string{}
	var lastConstraint string
	for rows.Next() {
		var name, ctype, column string
		if err := rows.Scan(&name, &ctype, &column); err != nil {
			return nil, nil, apperr.Wrap(apperr.Upstream, err, "scan key constraint")
		}
		if ctype == "PRIMARY KEY" {
			primary = append(primary, column)
			continue
		}
		if name != lastConstraint {
			uniques = append(uniques, []string{})
			lastConstraint = name
		}
		uniques[len(uniques)-1] = append(uniques[len(uniques)-1], column)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.Wrap(apperr.Upstream, err, "read key constraints")
	}
	return primary, uniques, nil
}

func foreignKeys(ctx context.Context, db *sql.DB, kind models.SourceKind, table string) ([]models.ForeignKey, error) {
	var query string
	switch kind {
	case models.SourcePostgres:
		query = `SELECT kcu.column_name, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
			JOIN information_schema.constraint_column_usage ccu ON tc.constraint_name = ccu.constraint_name
			WHERE tc.table_schema = 'public' AND tc.table_name = $1
			  AND tc.constraint_type = 'FOREIGN KEY'`
	case models.SourceMySQL:
		query = `SELECT column_name, referenced_table_name, referenced_column_name
			FROM information_schema.key_column_usage
			WHERE table_schema = DATABASE() AND table_name = ?
			  AND referenced_table_name IS NOT NULL`
	}
	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "read foreign keys")
	}
	defer rows.Close()

	fks := []models.ForeignKey{}
	for rows.Next() {
		var fk models.ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, apperr.Wrap(apperr.Upstream, err, "scan foreign key")
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, err, "read foreign keys")
	}
	return fks, nil
}

// ReadPage reads one page of raw rows from a source table. Row order is not
// stabilized; pages are only stable while the underlying table is quiet.
func (in *Inspector) ReadPage(ctx context.Context, conn models.Connection, table string, page, perPage int) (models.Page, error) {
	if page < 1 || perPage < 1 {
		return models.Page{}, apperr.New(apperr.Validation, "page and per_page must be >= 1")
	}

	db, err := in.open(conn)
	if err != nil {
		return models.Page{}, err
	}
	defer db.Close()

	if err := requireTable(ctx, db, conn.Source, table); err != nil {
		return models.Page{}, err
	}

	quoted := quoteIdent(conn.Source, table)
	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&total); err != nil {
		return models.Page{}, apperr.Wrap(apperr.Upstream, err, "count table rows")
	}

	if outOfRange(page, perPage, total) {
		return models.Page{}, apperr.New(apperr.NotFound,
			"page %d is out of range for %d records at %d per page", page, total, perPage)
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", quoted, perPage, (page-1)*perPage)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return models.Page{}, apperr.Wrap(apperr.Upstream, err, "read table page")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return models.Page{}, apperr.Wrap(apperr.Upstream, err, "read page columns")
	}

	data := [][]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.Page{}, apperr.Wrap(apperr.Upstream, err, "scan page row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return models.Page{}, apperr.Wrap(apperr.Upstream, err, "read table page")
	}

	return models.Page{
		Columns:      columns,
		Rows:         data,
		Page:         page,
		PerPage:      perPage,
		TotalPages:   pageCount(total, perPage),
		TotalRecords: total,
	}, nil
}

// outOfRange applies the page boundary rule: a page whose offset is at or
// past the record count does not exist, including page 1 of an empty table.
func outOfRange(page, perPage, total int) bool {
	return (page-1)*perPage >= total
}

func pageCount(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

// quoteIdent quotes a table identifier for the given source kind. Callers
// must have verified the table exists (requireTable) before interpolating.
func quoteIdent(kind models.SourceKind, ident string) string {
	if kind == models.SourceMySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}
