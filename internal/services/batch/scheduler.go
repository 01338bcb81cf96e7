package batch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
)

// Scheduler creates and starts a job for each configured scope on a cron
// schedule. A scope whose previous job is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Service
	scopes []string
	logger *slog.Logger
}

// NewScheduler builds a scheduler from cfg. It returns nil when no cron
// expression is configured.
func NewScheduler(jobs *Service, cfg config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Cron == "" {
		return nil, nil
	}
	schedule, err := config.ParseCron(cfg.Cron)
	if err != nil {
		return nil, err
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{models.ScopeAll}
	}

	s := &Scheduler{
		cron:   cron.New(),
		jobs:   jobs,
		scopes: scopes,
		logger: logger.With("component", "scheduler"),
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s, nil
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "scopes", s.scopes)
	s.cron.Start()
}

// Stop halts the schedule and waits for a tick in progress to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	for _, scope := range s.scopes {
		blocking, err := s.jobs.Busy(ctx, scope)
		if err != nil {
			s.logger.Error("scheduled job not created", "scope", scope, "error", err)
			continue
		}
		if blocking != "" {
			s.logger.Info("scheduled job skipped, scope busy", "scope", scope, "running_job_id", blocking)
			continue
		}

		job, err := s.jobs.Create(ctx, scope, models.JobTriggerSchedule)
		if err != nil {
			s.logger.Error("scheduled job not created", "scope", scope, "error", err)
			continue
		}

		if _, err := s.jobs.Start(ctx, job.ID); err != nil {
			// Another start won the scope between Busy and Start.
			if errors.Is(err, models.ErrConflict) {
				s.logger.Info("scheduled job skipped, scope busy", "scope", scope, "job_id", job.ID)
				if _, cerr := s.jobs.Cancel(ctx, job.ID, "scope busy"); cerr != nil {
					s.logger.Warn("could not retire skipped job", "job_id", job.ID, "error", cerr)
				}
				continue
			}
			s.logger.Error("scheduled job not started", "scope", scope, "job_id", job.ID, "error", err)
		}
	}
}
