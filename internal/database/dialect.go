package database

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DialectForDSN picks the dialect from a connection string.
func DialectForDSN(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Placeholder returns the bind-parameter style of the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Builder returns a squirrel statement builder bound to the dialect.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder())
}

// LockSuffix returns the row-locking clause for SELECTs inside a
// transaction. SQLite serializes writers itself and has no such clause.
func (d Dialect) LockSuffix() string {
	if d == DialectPostgres {
		return "FOR UPDATE"
	}
	return ""
}
