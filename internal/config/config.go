// Package config provides configuration management for StockSense.
// Configurations are loaded from TOML (or YAML) files with XDG-compliant paths.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stocksense/stocksense/internal/models"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Scoring    ScoringConfig    `toml:"scoring" yaml:"scoring"`
	Classifier ClassifierConfig `toml:"classifier" yaml:"classifier"`
	Alerts     AlertsConfig     `toml:"alerts" yaml:"alerts"`
	Batch      BatchConfig      `toml:"batch" yaml:"batch"`
	Scheduler  SchedulerConfig  `toml:"scheduler" yaml:"scheduler"`
	Kafka      KafkaConfig      `toml:"kafka" yaml:"kafka"`
	Redis      RedisConfig      `toml:"redis" yaml:"redis"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `toml:"addr" yaml:"addr"`
	RequestTimeout  time.Duration `toml:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level  LogLevel `toml:"level" yaml:"level"`
	File   string   `toml:"file" yaml:"file"`
	Format string   `toml:"format" yaml:"format"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig selects and tunes the store. DSN is a SQLite path (or
// ":memory:") unless it starts with postgres:// or postgresql://.
type DatabaseConfig struct {
	DSN                 string `toml:"dsn" yaml:"dsn"`
	BackupIntervalHours int    `toml:"backup_interval_hours" yaml:"backup_interval_hours"`
	BackupRetentionDays int    `toml:"backup_retention_days" yaml:"backup_retention_days"`
	MaxOpenConns        int    `toml:"max_open_conns" yaml:"max_open_conns"`
}

// ScoringConfig holds the risk-score weights and shelf-life adjustments.
type ScoringConfig struct {
	UrgencyHalfLifeDays float64       `toml:"urgency_half_life_days" yaml:"urgency_half_life_days"`
	UrgencyWeight       float64       `toml:"urgency_weight" yaml:"urgency_weight"`
	WasteWeight         float64       `toml:"waste_weight" yaml:"waste_weight"`
	StorageWeight       float64       `toml:"storage_weight" yaml:"storage_weight"`
	SeasonalityWeight   float64       `toml:"seasonality_weight" yaml:"seasonality_weight"`
	EnvironmentWeight   float64       `toml:"environment_weight" yaml:"environment_weight"`
	ShelfLifePenalty    float64       `toml:"shelf_life_penalty" yaml:"shelf_life_penalty"`
	EnvironmentPenalty  float64       `toml:"environment_penalty" yaml:"environment_penalty"`
	StaleAfter          time.Duration `toml:"stale_after" yaml:"stale_after"`
}

// ClassifierConfig holds tier thresholds and per-tier action templates.
// Each threshold is the inclusive lower bound of its tier. Templates may
// contain {item}, replaced by the product name.
type ClassifierConfig struct {
	MediumThreshold   float64 `toml:"medium_threshold" yaml:"medium_threshold"`
	HighThreshold     float64 `toml:"high_threshold" yaml:"high_threshold"`
	CriticalThreshold float64 `toml:"critical_threshold" yaml:"critical_threshold"`
	LowAction         string  `toml:"low_action" yaml:"low_action"`
	MediumAction      string  `toml:"medium_action" yaml:"medium_action"`
	HighAction        string  `toml:"high_action" yaml:"high_action"`
	CriticalAction    string  `toml:"critical_action" yaml:"critical_action"`
}

// AlertsConfig controls alert creation.
type AlertsConfig struct {
	MinTier  string        `toml:"min_tier" yaml:"min_tier"`
	Cooldown time.Duration `toml:"cooldown" yaml:"cooldown"`
	LockTTL  time.Duration `toml:"lock_ttl" yaml:"lock_ttl"`
}

// BatchConfig controls re-scoring passes.
type BatchConfig struct {
	Workers          int           `toml:"workers" yaml:"workers"`
	ItemTimeout      time.Duration `toml:"item_timeout" yaml:"item_timeout"`
	FailureThreshold float64       `toml:"failure_threshold" yaml:"failure_threshold"`
}

// SchedulerConfig controls periodic jobs. An empty Cron disables them.
type SchedulerConfig struct {
	Cron   string   `toml:"cron" yaml:"cron"`
	Scopes []string `toml:"scopes" yaml:"scopes"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string `toml:"brokers" yaml:"brokers"`
	AlertTopic string   `toml:"alert_topic" yaml:"alert_topic"`
	JobTopic   string   `toml:"job_topic" yaml:"job_topic"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig enables the cross-instance alert lock when Addr is set.
type RedisConfig struct {
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	LockPrefix string `toml:"lock_prefix" yaml:"lock_prefix"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	sections := []struct {
		name string
		err  error
	}{
		{"server", c.Server.Validate()},
		{"logging", c.Logging.Validate()},
		{"database", c.Database.Validate()},
		{"scoring", c.Scoring.Validate()},
		{"classifier", c.Classifier.Validate()},
		{"alerts", c.Alerts.Validate()},
		{"batch", c.Batch.Validate()},
		{"scheduler", c.Scheduler.Validate()},
		{"kafka", c.Kafka.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the server configuration is valid.
func (s *ServerConfig) Validate() error {
	var errs []error

	if s.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must be non-negative"))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}

	if !validLevels[l.Level] && l.Level != "" {
		errs = append(errs, fmt.Errorf("invalid log level: %s", l.Level))
	}

	if l.Format != "" && l.Format != "json" && l.Format != "text" {
		errs = append(errs, fmt.Errorf("invalid log format: %s", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}

	if d.BackupIntervalHours < 0 {
		errs = append(errs, errors.New("backup_interval_hours must be non-negative"))
	}

	if d.BackupRetentionDays < 0 {
		errs = append(errs, errors.New("backup_retention_days must be non-negative"))
	}

	if d.MaxOpenConns < 0 {
		errs = append(errs, errors.New("max_open_conns must be non-negative"))
	}

	return errors.Join(errs...)
}

// IsPostgres reports whether the DSN points at PostgreSQL.
func (d *DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.DSN, "postgres://") || strings.HasPrefix(d.DSN, "postgresql://")
}

// Validate checks that the scoring configuration is valid.
func (s *ScoringConfig) Validate() error {
	var errs []error

	if s.UrgencyHalfLifeDays <= 0 {
		errs = append(errs, errors.New("urgency_half_life_days must be positive"))
	}

	weights := []struct {
		name  string
		value float64
	}{
		{"urgency_weight", s.UrgencyWeight},
		{"waste_weight", s.WasteWeight},
		{"storage_weight", s.StorageWeight},
		{"seasonality_weight", s.SeasonalityWeight},
		{"environment_weight", s.EnvironmentWeight},
	}
	for _, w := range weights {
		if w.value < 0 {
			errs = append(errs, fmt.Errorf("%s must be non-negative", w.name))
		}
	}
	if s.UrgencyWeight == 0 {
		errs = append(errs, errors.New("urgency_weight must be positive so that risk rises toward expiry"))
	}

	if s.ShelfLifePenalty < 0 || s.ShelfLifePenalty > 0.9 {
		errs = append(errs, errors.New("shelf_life_penalty must be between 0 and 0.9"))
	}
	if s.EnvironmentPenalty < 0 || s.EnvironmentPenalty > 0.9 {
		errs = append(errs, errors.New("environment_penalty must be between 0 and 0.9"))
	}
	if s.StaleAfter < 0 {
		errs = append(errs, errors.New("stale_after must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks that thresholds are strictly increasing inside (0, 1].
func (c *ClassifierConfig) Validate() error {
	var errs []error

	if c.MediumThreshold <= 0 {
		errs = append(errs, errors.New("medium_threshold must be greater than 0"))
	}
	if c.HighThreshold <= c.MediumThreshold {
		errs = append(errs, errors.New("high_threshold must be greater than medium_threshold"))
	}
	if c.CriticalThreshold <= c.HighThreshold {
		errs = append(errs, errors.New("critical_threshold must be greater than high_threshold"))
	}
	if c.CriticalThreshold > 1 {
		errs = append(errs, errors.New("critical_threshold must not exceed 1"))
	}

	return errors.Join(errs...)
}

// Validate checks that the alert configuration is valid.
func (a *AlertsConfig) Validate() error {
	var errs []error

	if _, err := models.ParseTier("min_tier", a.MinTier); err != nil {
		errs = append(errs, err)
	}
	if a.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown must be non-negative"))
	}
	if a.LockTTL < 0 {
		errs = append(errs, errors.New("lock_ttl must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks that the batch configuration is valid.
func (b *BatchConfig) Validate() error {
	var errs []error

	if b.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if b.ItemTimeout <= 0 {
		errs = append(errs, errors.New("item_timeout must be positive"))
	}
	if b.FailureThreshold <= 0 || b.FailureThreshold > 1 {
		errs = append(errs, errors.New("failure_threshold must be in (0, 1]"))
	}

	return errors.Join(errs...)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five-field expression or a descriptor such
// as "@every 6h".
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Validate parses the cron expression and every scope.
func (s *SchedulerConfig) Validate() error {
	var errs []error

	if s.Cron != "" {
		if _, err := ParseCron(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err))
		}
	}
	for _, scope := range s.Scopes {
		if _, _, err := models.ParseScope(scope); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Validate checks that topics are named when brokers are configured.
func (k *KafkaConfig) Validate() error {
	if !k.Enabled() {
		return nil
	}

	var errs []error
	if k.AlertTopic == "" {
		errs = append(errs, errors.New("alert_topic is required when brokers are set"))
	}
	if k.JobTopic == "" {
		errs = append(errs, errors.New("job_topic is required when brokers are set"))
	}

	return errors.Join(errs...)
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			File:   "",
			Format: "json",
		},
		Database: DatabaseConfig{
			DSN:                 "stocksense.db",
			BackupIntervalHours: 24,
			BackupRetentionDays: 14,
			MaxOpenConns:        10,
		},
		Scoring: ScoringConfig{
			UrgencyHalfLifeDays: 3,
			UrgencyWeight:       0.55,
			WasteWeight:         0.25,
			StorageWeight:       0.20,
			SeasonalityWeight:   0.10,
			EnvironmentWeight:   0.10,
			ShelfLifePenalty:    0.5,
			EnvironmentPenalty:  0.25,
			StaleAfter:          72 * time.Hour,
		},
		Classifier: ClassifierConfig{
			MediumThreshold:   0.25,
			HighThreshold:     0.5,
			CriticalThreshold: 0.75,
			LowAction:         "No action needed for {item}",
			MediumAction:      "Monitor {item}, verify storage",
			HighAction:        "Plan markdown for {item} within 48h",
			CriticalAction:    "Discount or relocate {item} immediately",
		},
		Alerts: AlertsConfig{
			MinTier:  string(models.TierHigh),
			Cooldown: 6 * time.Hour,
			LockTTL:  10 * time.Second,
		},
		Batch: BatchConfig{
			Workers:          8,
			ItemTimeout:      10 * time.Second,
			FailureThreshold: 0.2,
		},
		Scheduler: SchedulerConfig{
			Cron:   "@every 6h",
			Scopes: []string{models.ScopeAll},
		},
		Kafka: KafkaConfig{
			AlertTopic: "stocksense.alerts",
			JobTopic:   "stocksense.batch-jobs",
		},
		Redis: RedisConfig{
			LockPrefix: "stocksense:alert-lock:",
		},
	}
}
