package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/stocksense/stocksense/internal/util"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
	Applied     bool
	AppliedAt   time.Time
}

// MigrationResult contains the result of running migrations.
type MigrationResult struct {
	Applied        []Migration
	CurrentVersion int
	TargetVersion  int
}

// Migrator applies the embedded schema. The SQL is written to run on both
// SQLite and PostgreSQL.
type Migrator struct {
	db         *DB
	migrations []Migration
}

// NewMigrator creates a new Migrator for the given database.
func NewMigrator(db *DB) (*Migrator, error) {
	m := &Migrator{db: db}

	if err := m.loadMigrations(); err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	if err := m.ensureMigrationsTable(); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	return m, nil
}

// Migrate brings db up to the latest schema version.
func Migrate(ctx context.Context, db *DB) (*MigrationResult, error) {
	m, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	return m.MigrateUp(ctx)
}

var migrationName = regexp.MustCompile(`^(\d{3})_(.+)\.sql$`)

// loadMigrations reads all migration files from the embedded filesystem.
func (m *Migrator) loadMigrations() error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationName.FindStringSubmatch(entry.Name())
		if matches == nil {
			slog.Warn("skipping invalid migration filename", "name", entry.Name())
			continue
		}

		version, _ := strconv.Atoi(matches[1])
		description := strings.ReplaceAll(matches[2], "_", " ")

		content, err := fs.ReadFile(migrationsFS, path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		upSQL, downSQL := parseMigration(string(content))

		m.migrations = append(m.migrations, Migration{
			Version:     version,
			Description: description,
			UpSQL:       upSQL,
			DownSQL:     downSQL,
		})
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	return nil
}

// parseMigration extracts UP and DOWN SQL from migration content.
// Format:
//
//	-- +migrate Up
//	SQL statements...
//	-- +migrate Down
//	SQL statements...
func parseMigration(content string) (upSQL, downSQL string) {
	const upMarker = "-- +migrate Up"
	const downMarker = "-- +migrate Down"

	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)

	switch {
	case upIdx == -1:
		return strings.TrimSpace(content), ""
	case downIdx == -1:
		return strings.TrimSpace(content[upIdx+len(upMarker):]), ""
	case upIdx < downIdx:
		return strings.TrimSpace(content[upIdx+len(upMarker) : downIdx]),
			strings.TrimSpace(content[downIdx+len(downMarker):])
	default:
		return strings.TrimSpace(content[upIdx+len(upMarker):]),
			strings.TrimSpace(content[downIdx+len(downMarker) : upIdx])
	}
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func (m *Migrator) ensureMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("querying current version: %w", err)
	}
	return version, nil
}

// LatestVersion returns the highest embedded migration version.
func (m *Migrator) LatestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// PendingMigrations returns migrations that haven't been applied yet.
func (m *Migrator) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			pending = append(pending, mig)
		}
	}

	return pending, nil
}

// MigrateUp runs all pending migrations.
func (m *Migrator) MigrateUp(ctx context.Context) (*MigrationResult, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{CurrentVersion: current, TargetVersion: current}

	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return nil, err
	}

	if len(pending) == 0 {
		slog.Debug("database is up to date", "version", current)
		return result, nil
	}

	result.TargetVersion = pending[len(pending)-1].Version

	for _, mig := range pending {
		slog.Info("applying migration", "version", mig.Version, "description", mig.Description)

		if err := m.applyMigration(ctx, mig); err != nil {
			return result, fmt.Errorf("migration %d failed: %w", mig.Version, err)
		}

		mig.Applied = true
		mig.AppliedAt = time.Now().UTC()
		result.Applied = append(result.Applied, mig)
	}

	slog.Info("migrations complete",
		"from", current,
		"to", result.TargetVersion,
		"applied", len(result.Applied),
	)

	return result, nil
}

// applyMigration applies a single migration within a transaction.
func (m *Migrator) applyMigration(ctx context.Context, mig Migration) error {
	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := execStatements(ctx, tx, mig.UpSQL); err != nil {
			return err
		}

		query, args, err := m.db.Builder().
			Insert("schema_migrations").
			Columns("version", "description", "applied_at").
			Values(mig.Version, mig.Description, util.FormatTimestamp(time.Now())).
			ToSql()
		if err != nil {
			return fmt.Errorf("building migration record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}

		return nil
	})
}

// MigrateDown rolls back the last migration.
func (m *Migrator) MigrateDown(ctx context.Context) (*MigrationResult, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{CurrentVersion: current, TargetVersion: current}

	if current == 0 {
		return result, errors.New("no migrations to roll back")
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			mig = &m.migrations[i]
			break
		}
	}

	if mig == nil {
		return result, fmt.Errorf("migration %d not found", current)
	}

	if mig.DownSQL == "" {
		return result, fmt.Errorf("migration %d has no rollback SQL", current)
	}

	slog.Info("rolling back migration", "version", mig.Version, "description", mig.Description)

	err = m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := execStatements(ctx, tx, mig.DownSQL); err != nil {
			return err
		}

		query, args, err := m.db.Builder().
			Delete("schema_migrations").
			Where(sq.Eq{"version": mig.Version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building rollback record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("removing migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("rollback %d failed: %w", mig.Version, err)
	}

	result.TargetVersion = current - 1
	result.Applied = append(result.Applied, *mig)

	return result, nil
}

// Status returns the status of all migrations.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT version, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		t, _ := util.ParseTimestamp(appliedAt)
		applied[version] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	status := make([]Migration, len(m.migrations))
	for i, mig := range m.migrations {
		status[i] = mig
		if t, ok := applied[mig.Version]; ok {
			status[i].Applied = true
			status[i].AppliedAt = t
		}
	}

	return status, nil
}

func execStatements(ctx context.Context, tx *sql.Tx, script string) error {
	for _, stmt := range splitStatements(script) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// splitStatements splits a script on semicolons that end a line. Comment
// lines are dropped. The schema has no triggers or procedure bodies, so no
// statement contains an embedded line-ending semicolon.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSuffix(strings.TrimSpace(current.String()), ";"))
			current.Reset()
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}

	return statements
}
