package models

import (
	"fmt"
	"time"

	"github.com/docc-labs/docc-api/internal/apperr"
)

type SourceKind string

const (
	SourceMySQL    SourceKind = "mysql"
	SourcePostgres SourceKind = "postgres"
)

func (k SourceKind) Valid() bool {
	return k == SourceMySQL || k == SourcePostgres
}

// Driver returns the database/sql driver name used to open a live
// connection of this kind.
func (k SourceKind) Driver() (string, error) {
	switch k {
	case SourceMySQL:
		return "mysql", nil
	case SourcePostgres:
		return "postgres", nil
	}
	return "", apperr.New(apperr.Validation, "unsupported source kind %q", string(k))
}

type Connection struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Source        SourceKind `json:"source" db:"source"`
	Host          string     `json:"host" db:"host"`
	Port          int        `json:"port" db:"port"`
	User          string     `json:"user" db:"user"`
	Password      string     `json:"password,omitempty" db:"password"`
	Database      string     `json:"database" db:"database"`
	Status        string     `json:"status" db:"status"` // enum: valid, invalid
	CreatedOn     time.Time  `json:"created_on" db:"created_on"`
	LastConnected *time.Time `json:"last_connected" db:"last_connected"`
	LastModified  *time.Time `json:"last_modified" db:"last_modified"`
}

// DSN builds the driver-specific connection string for the external source.
func (c *Connection) DSN() (string, error) {
	switch c.Source {
	case SourcePostgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	case SourceMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	}
	return "", apperr.New(apperr.Validation, "unsupported source kind %q", string(c.Source))
}
