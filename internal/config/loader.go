package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFileName is the standard configuration file name.
	DefaultConfigFileName = "stocksense.toml"

	// XDGConfigSubdir is the subdirectory under XDG_CONFIG_HOME for stocksense.
	XDGConfigSubdir = "stocksense"
)

// Environment variables that override file values.
const (
	EnvDatabaseDSN  = "STOCKSENSE_DATABASE_DSN"
	EnvHTTPAddr     = "STOCKSENSE_HTTP_ADDR"
	EnvKafkaBrokers = "STOCKSENSE_KAFKA_BROKERS"
	EnvRedisAddr    = "STOCKSENSE_REDIS_ADDR"
	EnvLogLevel     = "STOCKSENSE_LOG_LEVEL"
	EnvBatchWorkers = "STOCKSENSE_BATCH_WORKERS"
)

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load attempts to load configuration from multiple sources in order of precedence:
// 1. Explicit path (if provided)
// 2. XDG config path (~/.config/stocksense/stocksense.toml)
// 3. Current working directory (./stocksense.toml)
// 4. Default configuration (if createDefault is true)
//
// Environment overrides are applied last, then the result is validated.
// Returns the loaded configuration and the path it was loaded from.
func Load(explicitPath string, createDefault bool) (*Config, string, error) {
	if explicitPath != "" {
		cfg, err := loadFromFile(explicitPath)
		if err != nil {
			return nil, "", &LoadError{Path: explicitPath, Err: err}
		}
		return cfg, explicitPath, nil
	}

	xdgPath := xdgConfigPath()
	if xdgPath != "" && fileExists(xdgPath) {
		cfg, err := loadFromFile(xdgPath)
		if err != nil {
			return nil, "", &LoadError{Path: xdgPath, Err: err}
		}
		return cfg, xdgPath, nil
	}

	cwdPath := filepath.Join(".", DefaultConfigFileName)
	if fileExists(cwdPath) {
		cfg, err := loadFromFile(cwdPath)
		if err != nil {
			return nil, "", &LoadError{Path: cwdPath, Err: err}
		}
		return cfg, cwdPath, nil
	}

	if !createDefault {
		return nil, "", errors.New("no configuration file found; searched: " + xdgPath + ", " + cwdPath)
	}

	cfg := Default()
	if err := finalize(cfg); err != nil {
		return nil, "", &LoadError{Path: "defaults", Err: err}
	}

	defaultPath := cwdPath
	if xdgPath != "" {
		if err := os.MkdirAll(filepath.Dir(xdgPath), 0750); err == nil {
			defaultPath = xdgPath
		}
	}

	// An unwritable location still leaves a usable in-memory default.
	if err := Save(Default(), defaultPath); err != nil {
		return cfg, "", nil
	}

	return cfg, defaultPath, nil
}

// loadFromFile reads and parses a configuration file. Files ending in
// .yaml or .yml are decoded as YAML; everything else as TOML.
func loadFromFile(path string) (*Config, error) {
	// Start with defaults so missing values get sensible defaults
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	if err := Decode(path, data, cfg); err != nil {
		return nil, err
	}

	if err := finalize(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Decode parses data into cfg, picking the format from the file extension.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parsing TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parsing TOML: unknown keys %v", undecoded)
		}
	}
	return nil
}

func finalize(cfg *Config) error {
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg. lookup is normally
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		cfg.Database.DSN = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup(EnvKafkaBrokers); ok {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		cfg.Redis.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = LogLevel(strings.ToLower(v))
	}
	if v, ok := lookup(EnvBatchWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchWorkers, err)
		}
		cfg.Batch.Workers = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes a configuration to a TOML file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	header := `# StockSense spoilage risk engine configuration
#
# This file was auto-generated. Edit as needed.
# Durations use Go syntax ("90s", "6h"). Leave kafka.brokers empty to
# disable event publishing and redis.addr empty to disable the shared
# alert lock.

`
	if _, err := f.WriteString(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding TOML: %w", err)
	}

	return nil
}

// xdgConfigPath returns the XDG-compliant config file path.
// Returns empty string if XDG_CONFIG_HOME is not set and HOME is not available.
func xdgConfigPath() string {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig != "" {
		return filepath.Join(xdgConfig, XDGConfigSubdir, DefaultConfigFileName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", XDGConfigSubdir, DefaultConfigFileName)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ConfigPath returns the configuration file path that would be used.
func ConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	xdgPath := xdgConfigPath()
	if xdgPath != "" && fileExists(xdgPath) {
		return xdgPath
	}

	cwdPath := filepath.Join(".", DefaultConfigFileName)
	if fileExists(cwdPath) {
		return cwdPath
	}

	if xdgPath != "" {
		return xdgPath
	}

	return cwdPath
}

// ResolveDSN makes a relative SQLite path absolute under the XDG data
// directory and creates the parent directory. PostgreSQL DSNs, in-memory
// and file: URIs are returned unchanged.
func ResolveDSN(cfg *Config) (string, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.IsPostgres() || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}

	if filepath.IsAbs(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0750); err != nil {
			return "", fmt.Errorf("creating database directory: %w", err)
		}
		return dsn, nil
	}

	dataDir := xdgDataDir()
	if dataDir == "" {
		return dsn, nil
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		// Fall back to the working directory.
		return dsn, nil
	}
	return filepath.Join(dataDir, dsn), nil
}

// EnsureLogDir creates the log directory if needed.
// Returns the path to the log file, or "" when file logging is disabled.
func EnsureLogDir(cfg *Config) (string, error) {
	logPath := cfg.Logging.File
	if logPath == "" {
		return "", nil
	}

	dir := filepath.Dir(logPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return "", fmt.Errorf("creating log directory: %w", err)
		}
	}

	return logPath, nil
}

// BackupDir returns the directory for SQLite backups, next to the database.
func BackupDir(dbPath string) (string, error) {
	backupDir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(backupDir, 0750); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	return backupDir, nil
}

func xdgDataDir() string {
	xdgData := os.Getenv("XDG_DATA_HOME")
	if xdgData == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		xdgData = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(xdgData, XDGConfigSubdir)
}
