// StockSense: spoilage risk engine
//
// Scores perishable stock for spoilage risk, raises de-duplicated critical
// alerts and runs catalog re-scoring passes as tracked batch jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stocksense/stocksense/internal/api"
	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/database/seed"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/notify"
	"github.com/stocksense/stocksense/internal/report"
	"github.com/stocksense/stocksense/internal/services/alerts"
	"github.com/stocksense/stocksense/internal/services/batch"
	"github.com/stocksense/stocksense/internal/services/factors"
	"github.com/stocksense/stocksense/internal/services/risk"
	"github.com/stocksense/stocksense/internal/util"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	configPath  string
	migrateOnly bool
	seedData    bool
	rescore     bool
	printReport bool
	debugMode   bool
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (TOML or YAML)")
	flag.BoolVar(&opts.migrateOnly, "migrate-only", false, "Run migrations and exit")
	flag.BoolVar(&opts.seedData, "seed", false, "Generate the demo catalog and exit")
	flag.BoolVar(&opts.rescore, "rescore", false, "Run one full re-scoring job and exit")
	flag.BoolVar(&opts.printReport, "report", false, "Print the operator report and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&opts.debugMode, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("StockSense version %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, cfgPath, err := config.Load(opts.configPath, true)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, closeLog, err := setupLogging(cfg, opts.debugMode)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("StockSense starting",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cfgPath,
	)

	dsn, err := config.ResolveDSN(cfg)
	if err != nil {
		return fmt.Errorf("resolving database location: %w", err)
	}
	backupDir := ""
	if !cfg.Database.IsPostgres() && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if backupDir, err = config.BackupDir(dsn); err != nil {
			logger.Warn("failed to create backup directory", "error", err)
			backupDir = ""
		}
	}

	db, err := database.Open(dsn, &cfg.Database, backupDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		logger.Info("closing database")
		if err := db.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	result, err := database.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if len(result.Applied) > 0 {
		logger.Info("applied migrations",
			"count", len(result.Applied),
			"to_version", result.TargetVersion,
		)
	}

	if opts.migrateOnly {
		logger.Info("migrations complete, exiting")
		return nil
	}

	clock := util.SystemClock{}

	if opts.seedData {
		res, err := seed.NewGenerator(db, seed.DefaultConfig(clock.Now())).Generate(ctx)
		if err != nil {
			return fmt.Errorf("generating seed data: %w", err)
		}
		logger.Info("seed data ready", "products", res.Products, "snapshots", res.Snapshots)
		return nil
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	alertOpts := []alerts.Option{alerts.WithNotifier(notifier)}
	if cfg.Redis.Enabled() {
		rdb, err := alerts.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		alertOpts = append(alertOpts, alerts.WithLocker(alerts.NewRedisLocker(rdb, cfg.Redis.LockPrefix, cfg.Alerts.LockTTL)))
		logger.Info("shared alert lock enabled", "addr", cfg.Redis.Addr)
	}

	riskSvc := risk.NewService(db, cfg, clock, logger)
	alertSvc := alerts.NewService(db, cfg.Alerts, clock, logger, alertOpts...)
	batchSvc := batch.NewService(db, riskSvc.Catalog(), riskSvc, alertSvc, cfg.Batch, clock, logger,
		batch.WithNotifier(notifier))
	factorSvc := factors.NewService(db, clock, logger)

	if _, err := batchSvc.RecoverInterrupted(ctx); err != nil {
		return err
	}

	if opts.rescore {
		job, err := batchSvc.Run(ctx, models.ScopeAll, models.JobTriggerCLI)
		if err != nil {
			return fmt.Errorf("re-scoring: %w", err)
		}
		fmt.Println(job.Summary())
		if job.Status != models.JobStatusSucceeded {
			return errors.New("re-scoring job failed")
		}
		return nil
	}

	if opts.printReport {
		src := report.ServiceSource{Risk: riskSvc, Alerts: alertSvc, Jobs: batchSvc}
		rep, err := report.Build(ctx, src, clock.Now(), report.DefaultRows)
		if err != nil {
			return fmt.Errorf("building report: %w", err)
		}
		return rep.Render(os.Stdout)
	}

	return serve(ctx, cfg, logger, api.Services{
		Health:  db,
		Risk:    riskSvc,
		Factors: factorSvc,
		Alerts:  alertSvc,
		Batch:   batchSvc,
	})
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc api.Services) error {
	scheduler, err := batch.NewScheduler(svc.Batch, cfg.Scheduler, logger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(svc, cfg.Server.RequestTimeout, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := svc.Batch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("batch jobs still running at shutdown", "error", err)
	}

	logger.Info("StockSense shutdown complete")
	return nil
}

func setupLogging(cfg *config.Config, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case config.LogLevelDebug:
			level = slog.LevelDebug
		case config.LogLevelWarn:
			level = slog.LevelWarn
		case config.LogLevelError:
			level = slog.LevelError
		}
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	logPath, err := config.EnsureLogDir(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	var (
		handler slog.Handler
		closer  = func() {}
	)
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		closer = func() { _ = logFile.Close() }
		handler = slog.NewJSONHandler(logFile, handlerOpts)
	} else {
		var out io.Writer = os.Stderr
		if cfg.Logging.Format == "json" {
			handler = slog.NewJSONHandler(out, handlerOpts)
		} else {
			handler = slog.NewTextHandler(out, handlerOpts)
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	if !cfg.Kafka.Enabled() {
		return notify.NewLogNotifier(logger), nil
	}
	logger.Info("publishing events to kafka",
		"brokers", cfg.Kafka.Brokers,
		"alert_topic", cfg.Kafka.AlertTopic,
		"job_topic", cfg.Kafka.JobTopic)
	return notify.NewKafkaNotifier(cfg.Kafka), nil
}
