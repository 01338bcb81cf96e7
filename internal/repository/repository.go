// Package repository holds the SQL data access for StockSense. Queries are
// built with squirrel so that one code path serves SQLite and PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/util"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type base struct {
	db *database.DB
}

func (b base) getExecer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return b.db
}

func (b base) builder() sq.StatementBuilderType {
	return b.db.Builder()
}

// exec builds and runs a statement, returning rows affected.
func (b base) exec(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) (int64, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}
	res, err := b.getExecer(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b base) queryRow(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) (*sql.Row, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return b.getExecer(tx).QueryRowContext(ctx, query, args...), nil
}

func (b base) query(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	return b.getExecer(tx).QueryContext(ctx, query, args...)
}

// notFound maps sql.ErrNoRows to a typed not-found error.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return err
}

func formatTime(t time.Time) string {
	return util.FormatTimestamp(t)
}

func parseTime(s string) time.Time {
	t, _ := util.ParseTimestamp(s)
	return t
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s.String), &items); err != nil {
		return nil
	}
	return items
}
