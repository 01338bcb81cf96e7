// Package batch runs catalog re-scoring passes as tracked jobs. At most
// one job per scope runs at a time; a second start is refused, not queued.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/database"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/notify"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/services/risk"
	"github.com/stocksense/stocksense/internal/util"
)

// InterruptedSummary is recorded on jobs found running at startup.
const InterruptedSummary = "interrupted: service restarted"

const maxReportedErrors = 3

// ItemScorer scores one product and stores the result.
type ItemScorer interface {
	ScoreItem(ctx context.Context, p *models.Product, jobID *string) (*models.SpoilageRisk, error)
}

// AlertEvaluator opens alerts for scored items.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, risks []*models.SpoilageRisk) ([]*models.CriticalAlert, error)
}

// run is the in-process handle of a running job.
type run struct {
	job    *models.BatchJob
	cancel context.CancelFunc
	reason string
	done   chan struct{}
}

// Service manages batch jobs.
type Service struct {
	jobs        *repository.JobRepository
	catalog     risk.Catalog
	scorer      ItemScorer
	alerts      AlertEvaluator
	notifier    notify.Notifier
	cfg         config.BatchConfig
	idGenerator *util.IDGenerator
	clock       util.Clock
	logger      *slog.Logger

	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	byScope map[string]*run
	byID    map[string]*run
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where job completion events are published.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a batch job service.
func NewService(db *database.DB, catalog risk.Catalog, scorer ItemScorer, alerts AlertEvaluator, cfg config.BatchConfig, clock util.Clock, logger *slog.Logger, opts ...Option) *Service {
	base, stop := context.WithCancel(context.Background())
	s := &Service{
		jobs:        repository.NewJobRepository(db),
		catalog:     catalog,
		scorer:      scorer,
		alerts:      alerts,
		cfg:         cfg,
		idGenerator: util.NewIDGenerator(),
		clock:       clock,
		logger:      logger.With("component", "batch"),
		base:        base,
		stop:        stop,
		byScope:     make(map[string]*run),
		byID:        make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(logger)
	}
	return s
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Create records a pending job for scope.
func (s *Service) Create(ctx context.Context, scope string, trigger models.JobTrigger) (*models.BatchJob, error) {
	normalized, _, err := models.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = models.JobTriggerAPI
	}

	job := &models.BatchJob{
		ID:        s.idGenerator.NewID(),
		Scope:     normalized,
		Trigger:   trigger,
		Status:    models.JobStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, models.Infrastructure("creating job", err)
	}

	s.logger.Info("batch job created", "job_id", job.ID, "scope", job.Scope, "trigger", job.Trigger)
	return job, nil
}

// Start moves a pending job to running and begins its pass in the
// background. It fails with a conflict when another job of the same scope
// is running; neither job is changed in that case.
func (s *Service) Start(ctx context.Context, id string) (*models.BatchJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, &models.ConflictError{Reason: fmt.Sprintf("job %s is %s, not pending", id, job.Status)}
	}
	_, category, err := models.ParseScope(job.Scope)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(s.base)
	r := &run{job: job, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	if other, ok := s.byScope[job.Scope]; ok {
		s.mu.Unlock()
		return nil, scopeConflict(job.Scope, other.job.ID)
	}
	s.byScope[job.Scope] = r
	s.byID[job.ID] = r
	s.mu.Unlock()

	now := s.clock.Now()
	ok, err := s.jobs.MarkRunning(ctx, id, job.Scope, now)
	if err != nil || !ok {
		s.forget(r)
		cancel()
		close(r.done)
		return nil, s.startRefused(ctx, job, err)
	}

	job.Status = models.JobStatusRunning
	job.StartedAt = &now

	// execute owns job from here on.
	started := *job
	s.logger.Info("batch job started", "job_id", id, "scope", job.Scope)
	go s.execute(runCtx, r, category)

	return &started, nil
}

// Busy reports the ID of the job running for scope, or "" when the scope
// is free.
func (s *Service) Busy(ctx context.Context, scope string) (string, error) {
	scope, _, err := models.ParseScope(scope)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	r, ok := s.byScope[scope]
	s.mu.Unlock()
	if ok {
		return r.job.ID, nil
	}

	running, err := s.jobs.RunningForScope(ctx, scope)
	if err != nil {
		return "", models.Infrastructure("checking scope", err)
	}
	if running == nil {
		return "", nil
	}
	return running.ID, nil
}

// startRefused explains why MarkRunning changed nothing.
func (s *Service) startRefused(ctx context.Context, job *models.BatchJob, cause error) error {
	if other, err := s.jobs.RunningForScope(ctx, job.Scope); err == nil && other != nil {
		return scopeConflict(job.Scope, other.ID)
	}
	if cause != nil {
		return models.Infrastructure("starting job", cause)
	}
	return &models.ConflictError{Reason: fmt.Sprintf("job %s is no longer pending", job.ID)}
}

func scopeConflict(scope, blockingID string) error {
	return &models.ConflictError{
		Reason:     fmt.Sprintf("a job for scope %s is already running", scope),
		BlockingID: blockingID,
	}
}

// Cancel stops a job. A pending job fails at once. A running job starts
// no further items; it fails once the items in flight finish, and Cancel
// waits for that. Cancelling a finished job is a conflict.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.BatchJob, error) {
	if reason == "" {
		reason = "requested"
	}
	summary := "cancelled: " + reason

	s.mu.Lock()
	r, inProcess := s.byID[id]
	if inProcess {
		if r.reason == "" {
			r.reason = reason
		}
		r.cancel()
	}
	s.mu.Unlock()

	if inProcess {
		s.logger.Info("batch job cancellation requested", "job_id", id, "reason", reason)
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		if inProcess {
			return job, nil
		}
		return nil, &models.ConflictError{Reason: fmt.Sprintf("job %s is already %s", id, job.Status)}
	}

	// Pending, or running with no pass in this process to stop.
	ok, err := s.jobs.Fail(ctx, id, summary, s.clock.Now(), models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return nil, models.Infrastructure("cancelling job", err)
	}
	job, err = s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &models.ConflictError{Reason: fmt.Sprintf("job %s is already %s", id, job.Status)}
	}

	s.logger.Info("batch job cancelled", "job_id", id, "reason", reason)
	s.publish(job)
	return job, nil
}

// Wait blocks until the in-process pass of job id has finished. It
// returns at once when no such pass exists.
func (s *Service) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run creates a job, starts it and waits for it to finish.
func (s *Service) Run(ctx context.Context, scope string, trigger models.JobTrigger) (*models.BatchJob, error) {
	job, err := s.Create(ctx, scope, trigger)
	if err != nil {
		return nil, err
	}
	if _, err := s.Start(ctx, job.ID); err != nil {
		return nil, err
	}
	if err := s.Wait(ctx, job.ID); err != nil {
		return nil, err
	}
	return s.jobs.GetByID(ctx, job.ID)
}

// RecoverInterrupted fails jobs that a previous process left running.
func (s *Service) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.jobs.FailRunning(ctx, InterruptedSummary, s.clock.Now())
	if err != nil {
		return 0, models.Infrastructure("recovering jobs", err)
	}
	if n > 0 {
		s.logger.Warn("failed jobs interrupted by restart", "count", n)
	}
	return n, nil
}

// Shutdown cancels every running pass and waits for them to record their
// outcome or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.byID))
	for _, r := range s.byID {
		if r.reason == "" {
			r.reason = "service shutting down"
		}
		runs = append(runs, r)
	}
	s.mu.Unlock()

	s.stop()
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (*models.BatchJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// List returns jobs matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.JobFilter) ([]*models.BatchJob, error) {
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, models.Infrastructure("listing jobs", err)
	}
	if jobs == nil {
		jobs = []*models.BatchJob{}
	}
	return jobs, nil
}

// ============================================================================
// PASS
// ============================================================================

type tally struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	errs      []string
	scored    []*models.SpoilageRisk
}

func (t *tally) success(r *models.SpoilageRisk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded++
	t.scored = append(t.scored, r)
}

func (t *tally) failure(productID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	if len(t.errs) < maxReportedErrors {
		t.errs = append(t.errs, fmt.Sprintf("%s: %v", productID, err))
	}
}

func (s *Service) execute(ctx context.Context, r *run, category string) {
	defer func() {
		r.cancel()
		s.forget(r)
		close(r.done)
	}()

	job := r.job
	log := s.logger.With("job_id", job.ID, "scope", job.Scope)

	products, err := s.catalog.List(s.base, models.ProductFilter{Category: category, ActiveOnly: true})
	if err != nil {
		log.Error("listing catalog failed", "error", err)
		s.finish(job, &tally{}, "listing catalog: "+err.Error())
		return
	}

	t := &tally{}
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	jobID := job.ID
	for _, p := range products {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up after cancellation.
			if ctx.Err() != nil {
				return nil
			}
			scored, err := s.scoreWithTimeout(p, &jobID)
			if err != nil {
				log.Debug("item failed", "product_id", p.ID, "error", err)
				t.failure(p.ID, err)
				return nil
			}
			t.success(scored)
			return nil
		})
	}
	_ = g.Wait()

	var summary string
	if len(t.scored) > 0 {
		alertCtx, cancel := context.WithTimeout(s.base, s.cfg.ItemTimeout)
		created, err := s.alerts.Evaluate(alertCtx, t.scored)
		cancel()
		if err != nil {
			log.Error("alert evaluation failed", "error", err)
			summary = "alert evaluation: " + err.Error()
		} else if len(created) > 0 {
			log.Info("alerts opened by pass", "count", len(created))
		}
	}

	s.mu.Lock()
	reason := r.reason
	s.mu.Unlock()
	if reason != "" && summary == "" {
		summary = "cancelled: " + reason
	}

	s.finish(job, t, summary)
}

// scoreWithTimeout scores p, giving up after the item timeout. An
// abandoned call keeps running in the background until it returns.
func (s *Service) scoreWithTimeout(p *models.Product, jobID *string) (*models.SpoilageRisk, error) {
	ctx, cancel := context.WithTimeout(s.base, s.cfg.ItemTimeout)
	defer cancel()

	type result struct {
		risk *models.SpoilageRisk
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		scored, err := s.scorer.ScoreItem(ctx, p, jobID)
		ch <- result{scored, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out after %s", s.cfg.ItemTimeout)
	}
	return res.risk, res.err
}

// finish decides the outcome from the tallies and records it. A non-empty
// failure reason fails the job regardless of the tallies.
func (s *Service) finish(job *models.BatchJob, t *tally, failure string) {
	now := s.clock.Now()
	job.ItemsSucceeded = t.succeeded
	job.ItemsFailed = t.failed
	job.ItemsProcessed = t.succeeded + t.failed
	job.CompletedAt = &now

	var summary string
	switch {
	case failure != "":
		job.Status = models.JobStatusFailed
		summary = failure
	case job.ItemsProcessed > 0 && job.FailureRatio() >= s.cfg.FailureThreshold:
		job.Status = models.JobStatusFailed
		summary = fmt.Sprintf("failure threshold exceeded: %d of %d items failed (threshold %.2f)",
			job.ItemsFailed, job.ItemsProcessed, s.cfg.FailureThreshold)
	default:
		job.Status = models.JobStatusSucceeded
		if job.ItemsFailed > 0 {
			summary = fmt.Sprintf("%d of %d items failed", job.ItemsFailed, job.ItemsProcessed)
		}
	}
	if len(t.errs) > 0 {
		summary += "; first errors: " + joinErrs(t.errs)
	}
	if summary != "" {
		job.ErrorSummary = &summary
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ItemTimeout)
	defer cancel()
	ok, err := s.jobs.Complete(ctx, job)
	switch {
	case err != nil:
		s.logger.Error("recording job outcome failed", "job_id", job.ID, "error", err)
		return
	case !ok:
		s.logger.Warn("job left running state before completion", "job_id", job.ID)
		return
	}

	s.logger.Info("batch job finished",
		"job_id", job.ID,
		"scope", job.Scope,
		"status", job.Status,
		"processed", job.ItemsProcessed,
		"failed", job.ItemsFailed)
	s.publish(job)
}

func joinErrs(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

func (s *Service) forget(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byScope[r.job.Scope] == r {
		delete(s.byScope, r.job.Scope)
	}
	if s.byID[r.job.ID] == r {
		delete(s.byID, r.job.ID)
	}
}

func (s *Service) publish(job *models.BatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ItemTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, notify.JobEvent(job, s.clock.Now())); err != nil {
		s.logger.Warn("failed to publish event", "job_id", job.ID, "error", err)
	}
}
