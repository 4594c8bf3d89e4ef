package repository

import (
	"context"
	"database/sql"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
	"github.com/docc-labs/docc-api/internal/secrets"
)

type ConnectionRepository interface {
	List(ctx context.Context) ([]models.Connection, error)
	Get(ctx context.Context, id int64) (models.Connection, error)
	Create(ctx context.Context, conn models.Connection) (models.Connection, error)
	Update(ctx context.Context, conn models.Connection) (models.Connection, error)
	Delete(ctx context.Context, id int64) error
}

type connectionRepository struct {
	q DBTX
}

const connectionColumns = `id, name, source, host, port, "user", password, database, status, created_on, last_connected, last_modified`

func scanConnection(row interface{ Scan(...any) error }) (models.Connection, error) {
	var c models.Connection
	err := row.Scan(&c.ID, &c.Name, &c.Source, &c.Host, &c.Port, &c.User, &c.Password,
		&c.Database, &c.Status, &c.CreatedOn, &c.LastConnected, &c.LastModified)
	if err != nil {
		return c, err
	}
	c.Password, err = secrets.DecryptPassword(c.Password)
	return c, err
}

func (r *connectionRepository) List(ctx context.Context) ([]models.Connection, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY created_on DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list connections")
	}
	defer rows.Close()

	connections := []models.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Storage, err, "scan connection")
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list connections")
	}
	return connections, nil
}

func (r *connectionRepository) Get(ctx context.Context, id int64) (models.Connection, error) {
	c, err := scanConnection(r.q.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return c, apperr.New(apperr.NotFound, "connection %d not found", id)
	}
	if err != nil {
		return c, apperr.Wrap(apperr.Storage, err, "get connection")
	}
	return c, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn models.Connection) (models.Connection, error) {
	stored, err := secrets.EncryptPassword(conn.Password)
	if err != nil {
		return conn, apperr.Wrap(apperr.Storage, err, "encrypt password")
	}
	err = r.q.QueryRowContext(ctx, `
		INSERT INTO connections (name, source, host, port, "user", password, database, status, last_connected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_on`,
		conn.Name, conn.Source, conn.Host, conn.Port, conn.User, stored,
		conn.Database, conn.Status, conn.LastConnected,
	).Scan(&conn.ID, &conn.CreatedOn)
	if err != nil {
		return conn, apperr.Wrap(apperr.Storage, err, "insert connection")
	}
	return conn, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn models.Connection) (models.Connection, error) {
	stored, err := secrets.EncryptPassword(conn.Password)
	if err != nil {
		return conn, apperr.Wrap(apperr.Storage, err, "encrypt password")
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE connections
		SET name = $1, source = $2, host = $3, port = $4, "user" = $5, password = $6,
		    database = $7, status = $8, last_connected = $9, last_modified = NOW()
		WHERE id = $10`,
		conn.Name, conn.Source, conn.Host, conn.Port, conn.User, stored,
		conn.Database, conn.Status, conn.LastConnected, conn.ID)
	if err != nil {
		return conn, apperr.Wrap(apperr.Storage, err, "update connection")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return conn, apperr.Wrap(apperr.Storage, err, "update connection")
	}
	if affected == 0 {
		return conn, apperr.New(apperr.NotFound, "connection %d not found", conn.ID)
	}
	return conn, nil
}

func (r *connectionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "delete connection")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Storage, err, "delete connection")
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, "connection %d not found", id)
	}
	return nil
}
