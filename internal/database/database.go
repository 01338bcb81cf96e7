// Package database opens the StockSense store. SQLite is the default and
// runs with WAL mode, integrity checks and scheduled backups; a postgres://
// DSN switches to PostgreSQL through the pgx driver.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/stocksense/stocksense/internal/config"
)

// ErrClosed is returned for operations on a closed DB.
var ErrClosed = errors.New("database is closed")

// DB wraps a sql.DB with its dialect and SQLite maintenance duties.
type DB struct {
	*sql.DB
	dialect   Dialect
	path      string
	config    *config.DatabaseConfig
	backupDir string

	mu     sync.RWMutex
	closed bool

	backupTicker *time.Ticker
	backupDone   chan struct{}
}

// Open connects to dsn. For SQLite, dsn is a file path and backupDir
// (optional) receives scheduled backups.
func Open(dsn string, cfg *config.DatabaseConfig, backupDir string) (*DB, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}
	dialect := DialectForDSN(dsn)
	if dialect == DialectPostgres {
		return openPostgres(dsn, cfg)
	}
	return openSQLite(dsn, cfg, backupDir)
}

func openPostgres(dsn string, cfg *config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open(DialectPostgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		dialect: DialectPostgres,
		path:    redactDSN(dsn),
		config:  cfg,
	}, nil
}

func openSQLite(dbPath string, cfg *config.DatabaseConfig, backupDir string) (*DB, error) {
	memory := dbPath == ":memory:"
	if !memory && !strings.HasPrefix(dbPath, "file:") {
		dir := filepath.Dir(dbPath)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	connStr := dbPath
	if !memory && !strings.HasPrefix(dbPath, "file:") {
		connStr = fmt.Sprintf("file:%s?_txlock=immediate&_timeout=5000&_fk=true", dbPath)
	}

	sqlDB, err := sql.Open(DialectSQLite.DriverName(), connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer; an in-memory database also lives
	// and dies with its single connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db := &DB{
		DB:        sqlDB,
		dialect:   DialectSQLite,
		path:      dbPath,
		config:    cfg,
		backupDir: backupDir,
	}

	if err := db.initPragmas(memory); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initializing pragmas: %w", err)
	}

	if err := db.CheckIntegrity(context.Background()); err != nil {
		slog.Warn("database integrity check failed", "error", err)
	}

	if !memory && cfg.BackupIntervalHours > 0 && backupDir != "" {
		db.startBackupScheduler()
	}

	return db, nil
}

// initPragmas sets the SQLite pragmas. In-memory databases skip the
// on-disk journal settings.
func (db *DB) initPragmas(memory bool) error {
	pragmas := []struct {
		name   string
		pragma string
		disk   bool
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL", true},
		{"synchronous", "PRAGMA synchronous=NORMAL", true},
		{"busy_timeout", "PRAGMA busy_timeout=5000", false},
		{"foreign_keys", "PRAGMA foreign_keys=ON", false},
		{"cache_size", "PRAGMA cache_size=-16000", true},
	}

	for _, p := range pragmas {
		if p.disk && memory {
			continue
		}
		if _, err := db.Exec(p.pragma); err != nil {
			return fmt.Errorf("setting %s: %w", p.name, err)
		}
	}

	return nil
}

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Builder returns a squirrel statement builder with the right placeholders.
func (db *DB) Builder() sq.StatementBuilderType {
	return db.dialect.Builder()
}

// CheckIntegrity performs a database integrity check. PostgreSQL manages
// its own consistency, so only SQLite is checked.
func (db *DB) CheckIntegrity(ctx context.Context) error {
	if db.dialect != DialectSQLite {
		return nil
	}

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating results: %w", err)
	}

	if len(results) == 1 && results[0] == "ok" {
		return nil
	}

	return fmt.Errorf("integrity check failed: %v", results)
}

// Checkpoint forces a WAL checkpoint to sync all changes to the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.dialect != DialectSQLite || db.path == ":memory:" {
		return nil
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Backup writes a copy of a SQLite database into the backup directory.
func (db *DB) Backup(ctx context.Context) (string, error) {
	if db.dialect != DialectSQLite {
		return "", errors.New("backups are only managed for sqlite")
	}
	if db.backupDir == "" {
		return "", errors.New("backup directory not configured")
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := filepath.Join(db.backupDir, fmt.Sprintf("stocksense-%s.db", timestamp))

	if err := db.Checkpoint(ctx); err != nil {
		slog.Warn("checkpoint before backup failed", "error", err)
	}

	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(backupPath, "'", "''"))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("creating backup: %w", err)
	}

	slog.Info("database backup created", "path", backupPath)

	if db.config.BackupRetentionDays > 0 {
		go db.cleanOldBackups()
	}

	return backupPath, nil
}

// cleanOldBackups removes backups older than the retention period.
func (db *DB) cleanOldBackups() {
	cutoff := time.Now().AddDate(0, 0, -db.config.BackupRetentionDays)

	entries, err := os.ReadDir(db.backupDir)
	if err != nil {
		slog.Warn("reading backup directory", "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "stocksense-") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			path := filepath.Join(db.backupDir, entry.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("removing old backup", "path", path, "error", err)
			} else {
				slog.Debug("removed old backup", "path", path)
			}
		}
	}
}

// startBackupScheduler starts the background backup scheduler.
func (db *DB) startBackupScheduler() {
	interval := time.Duration(db.config.BackupIntervalHours) * time.Hour
	db.backupTicker = time.NewTicker(interval)
	db.backupDone = make(chan struct{})

	go func() {
		for {
			select {
			case <-db.backupTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := db.Backup(ctx); err != nil {
					slog.Error("scheduled backup failed", "error", err)
				}
				cancel()
			case <-db.backupDone:
				return
			}
		}
	}()
}

// Close stops the backup scheduler, checkpoints the WAL and closes the pool.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if db.backupTicker != nil {
		db.backupTicker.Stop()
		close(db.backupDone)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Checkpoint(ctx); err != nil {
		slog.Warn("final checkpoint failed", "error", err)
	}

	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}

	slog.Debug("database closed", "dialect", db.dialect)
	return nil
}

// IsClosed returns true if the database has been closed.
func (db *DB) IsClosed() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.closed
}

// Path returns the database file path, or the redacted DSN for PostgreSQL.
func (db *DB) Path() string {
	return db.path
}

// BeginTx starts a transaction with the given options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if db.IsClosed() {
		return nil, ErrClosed
	}
	return db.DB.BeginTx(ctx, opts)
}

// WithTransaction executes a function within a transaction.
// The transaction is committed if the function returns nil, otherwise rolled back.
func (db *DB) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// HealthCheck performs a basic health check on the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.IsClosed() {
		return ErrClosed
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check query: %w", err)
	}

	if result != 1 {
		return errors.New("unexpected health check result")
	}

	return nil
}

// redactDSN hides the password of a URL-style DSN for logging.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
