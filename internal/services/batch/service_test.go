package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stocksense/stocksense/internal/config"
	"github.com/stocksense/stocksense/internal/models"
	"github.com/stocksense/stocksense/internal/notify"
	"github.com/stocksense/stocksense/internal/repository"
	"github.com/stocksense/stocksense/internal/services/alerts"
	"github.com/stocksense/stocksense/internal/services/risk"
	"github.com/stocksense/stocksense/internal/testutil"
	"github.com/stocksense/stocksense/internal/util"
)

type stubCatalog struct {
	products []*models.Product
	err      error
}

func (c *stubCatalog) GetByID(_ context.Context, id string) (*models.Product, error) {
	for _, p := range c.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "product", ID: id}
}

func (c *stubCatalog) List(_ context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []*models.Product
	for _, p := range c.products {
		if filter.Category == "" || p.Category == filter.Category {
			out = append(out, p)
		}
	}
	return out, nil
}

// scorerFunc adapts a function to ItemScorer.
type scorerFunc func(ctx context.Context, p *models.Product) (*models.SpoilageRisk, error)

func (f scorerFunc) ScoreItem(ctx context.Context, p *models.Product, _ *string) (*models.SpoilageRisk, error) {
	return f(ctx, p)
}

func okScorer(_ context.Context, p *models.Product) (*models.SpoilageRisk, error) {
	return &models.SpoilageRisk{ProductID: p.ID, Category: p.Category, SpoilageRisk: models.TierLow}, nil
}

type stubAlerts struct {
	mu    sync.Mutex
	err   error
	calls int
	seen  int
}

func (a *stubAlerts) Evaluate(_ context.Context, risks []*models.SpoilageRisk) ([]*models.CriticalAlert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.seen += len(risks)
	return nil, a.err
}

type fixture struct {
	svc    *Service
	jobs   *repository.JobRepository
	alerts *stubAlerts
	events *notify.Recorder
}

func setup(t *testing.T, catalog risk.Catalog, scorer ItemScorer, mutate ...func(*config.BatchConfig)) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	cfg := config.Default().Batch
	for _, m := range mutate {
		m(&cfg)
	}
	events := &notify.Recorder{}
	stub := &stubAlerts{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(db.DB, catalog, scorer, stub, cfg, util.NewManualClock(testutil.RefTime), logger, WithNotifier(events))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return &fixture{svc: svc, jobs: repository.NewJobRepository(db.DB), alerts: stub, events: events}
}

func products(n int, category string) []*models.Product {
	out := make([]*models.Product, n)
	for i := range out {
		out[i] = testutil.FixtureProduct(func(p *models.Product) {
			p.Category = category
			p.Name = fmt.Sprintf("%s item %d", category, i)
		})
	}
	return out
}

func (f *fixture) runToEnd(t *testing.T, scope string) *models.BatchJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := f.svc.Run(ctx, scope, models.JobTriggerCLI)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	return job
}

func assertTallies(t *testing.T, j *models.BatchJob) {
	t.Helper()
	if j.ItemsProcessed != j.ItemsSucceeded+j.ItemsFailed {
		t.Errorf("processed %d != succeeded %d + failed %d", j.ItemsProcessed, j.ItemsSucceeded, j.ItemsFailed)
	}
}

func TestCreate(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))
	ctx := context.Background()

	tests := []struct {
		scope string
		want  string
	}{
		{"", models.ScopeAll},
		{"all", models.ScopeAll},
		{"category: dairy", "category:dairy"},
	}
	for _, tt := range tests {
		job, err := f.svc.Create(ctx, tt.scope, "")
		if err != nil {
			t.Fatalf("Create(%q) = %v", tt.scope, err)
		}
		if job.Scope != tt.want || job.Status != models.JobStatusPending || job.Trigger != models.JobTriggerAPI {
			t.Errorf("Create(%q) = %+v", tt.scope, job)
		}
	}

	for _, bad := range []string{"everything", "category:"} {
		if _, err := f.svc.Create(ctx, bad, ""); !errors.Is(err, models.ErrValidation) {
			t.Errorf("Create(%q) = %v, want validation error", bad, err)
		}
	}
}

func TestRun_Succeeds(t *testing.T) {
	catalog := &stubCatalog{products: append(products(5, "dairy"), products(3, "produce")...)}
	f := setup(t, catalog, scorerFunc(okScorer))

	job := f.runToEnd(t, models.ScopeAll)
	if job.Status != models.JobStatusSucceeded || job.ItemsProcessed != 8 || job.ItemsFailed != 0 {
		t.Errorf("job = %+v", job)
	}
	if job.StartedAt == nil || job.CompletedAt == nil || job.ErrorSummary != nil {
		t.Errorf("job = %+v", job)
	}
	assertTallies(t, job)

	if f.alerts.calls != 1 || f.alerts.seen != 8 {
		t.Errorf("alerts saw %d items in %d calls", f.alerts.seen, f.alerts.calls)
	}
	if got := f.events.Events(notify.EventJobFinished); len(got) != 1 {
		t.Errorf("job.finished events = %d, want 1", len(got))
	}

	scoped := f.runToEnd(t, "category:produce")
	if scoped.ItemsProcessed != 3 {
		t.Errorf("category pass processed %d, want 3", scoped.ItemsProcessed)
	}
}

func TestRun_EmptyCatalogSucceeds(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))

	job := f.runToEnd(t, models.ScopeAll)
	if job.Status != models.JobStatusSucceeded || job.ItemsProcessed != 0 {
		t.Errorf("job = %+v", job)
	}
	if f.alerts.calls != 0 {
		t.Errorf("alerts called %d times for an empty pass", f.alerts.calls)
	}
}

func TestRun_FailureThreshold(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		failing    int
		wantStatus models.JobStatus
	}{
		{"below threshold", 10, 1, models.JobStatusSucceeded},
		{"at threshold", 10, 2, models.JobStatusFailed},
		{"all failing", 4, 4, models.JobStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &stubCatalog{products: products(tt.total, "dairy")}
			failing := make(map[string]bool)
			for _, p := range catalog.products[:tt.failing] {
				failing[p.ID] = true
			}
			scorer := scorerFunc(func(ctx context.Context, p *models.Product) (*models.SpoilageRisk, error) {
				if failing[p.ID] {
					return nil, risk.ErrMissingExpiry
				}
				return okScorer(ctx, p)
			})
			f := setup(t, catalog, scorer)

			job := f.runToEnd(t, models.ScopeAll)
			if job.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", job.Status, tt.wantStatus)
			}
			if job.ItemsProcessed != tt.total || job.ItemsFailed != tt.failing {
				t.Errorf("job = %+v", job)
			}
			assertTallies(t, job)
			if job.ErrorSummary == nil || !strings.Contains(*job.ErrorSummary, "no expiration date") {
				t.Errorf("ErrorSummary = %v", job.ErrorSummary)
			}
		})
	}
}

func TestRun_ItemTimeout(t *testing.T) {
	catalog := &stubCatalog{products: products(6, "dairy")}
	slow := catalog.products[0].ID
	scorer := scorerFunc(func(ctx context.Context, p *models.Product) (*models.SpoilageRisk, error) {
		if p.ID == slow {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return okScorer(ctx, p)
	})
	f := setup(t, catalog, scorer, func(c *config.BatchConfig) { c.ItemTimeout = 20 * time.Millisecond })

	job := f.runToEnd(t, models.ScopeAll)
	if job.Status != models.JobStatusSucceeded || job.ItemsFailed != 1 || job.ItemsSucceeded != 5 {
		t.Errorf("job = %+v", job)
	}
	if job.ErrorSummary == nil || !strings.Contains(*job.ErrorSummary, "timed out") {
		t.Errorf("ErrorSummary = %v", job.ErrorSummary)
	}
}

func TestRun_InfrastructureFailures(t *testing.T) {
	t.Run("catalog", func(t *testing.T) {
		f := setup(t, &stubCatalog{err: errors.New("connection refused")}, scorerFunc(okScorer))
		job := f.runToEnd(t, models.ScopeAll)
		if job.Status != models.JobStatusFailed || job.ErrorSummary == nil ||
			!strings.HasPrefix(*job.ErrorSummary, "listing catalog") {
			t.Errorf("job = %+v", job)
		}
		assertTallies(t, job)
	})

	t.Run("alerts", func(t *testing.T) {
		f := setup(t, &stubCatalog{products: products(2, "dairy")}, scorerFunc(okScorer))
		f.alerts.err = errors.New("database is locked")
		job := f.runToEnd(t, models.ScopeAll)
		if job.Status != models.JobStatusFailed || job.ErrorSummary == nil ||
			!strings.HasPrefix(*job.ErrorSummary, "alert evaluation") {
			t.Errorf("job = %+v", job)
		}
		if job.ItemsSucceeded != 2 {
			t.Errorf("ItemsSucceeded = %d, want 2", job.ItemsSucceeded)
		}
	})
}

func TestStart_ReturnsRunningSnapshot(t *testing.T) {
	for name, catalog := range map[string]*stubCatalog{
		"catalog error": {err: errors.New("connection refused")},
		"empty catalog": {},
	} {
		t.Run(name, func(t *testing.T) {
			f := setup(t, catalog, scorerFunc(okScorer))
			ctx := context.Background()

			job, _ := f.svc.Create(ctx, models.ScopeAll, "")
			started, err := f.svc.Start(ctx, job.ID)
			if err != nil {
				t.Fatalf("Start() = %v", err)
			}
			if err := f.svc.Wait(ctx, job.ID); err != nil {
				t.Fatal(err)
			}

			if started.Status != models.JobStatusRunning || started.StartedAt == nil ||
				started.CompletedAt != nil || started.ErrorSummary != nil {
				t.Errorf("Start() returned %+v, want the running snapshot", started)
			}
			done, err := f.svc.Get(ctx, job.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !done.Status.Terminal() {
				t.Errorf("stored status = %s, want terminal", done.Status)
			}
		})
	}
}

// gate blocks every scoring call until released.
type gate struct {
	entered chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan string, 100), release: make(chan struct{})}
}

func (g *gate) scorer() ItemScorer {
	return scorerFunc(func(ctx context.Context, p *models.Product) (*models.SpoilageRisk, error) {
		g.entered <- p.ID
		<-g.release
		return okScorer(ctx, p)
	})
}

func TestStart_ScopeConflict(t *testing.T) {
	g := newGate()
	catalog := &stubCatalog{products: products(2, "dairy")}
	f := setup(t, catalog, g.scorer())
	ctx := context.Background()

	first, _ := f.svc.Create(ctx, models.ScopeAll, "")
	second, _ := f.svc.Create(ctx, models.ScopeAll, "")
	other, _ := f.svc.Create(ctx, "category:dairy", "")

	started, err := f.svc.Start(ctx, first.ID)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if started.Status != models.JobStatusRunning {
		t.Errorf("Status = %s", started.Status)
	}
	<-g.entered

	_, err = f.svc.Start(ctx, second.ID)
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) || conflict.BlockingID != first.ID {
		t.Fatalf("second Start() = %v, want conflict blocked by %s", err, first.ID)
	}
	if got, _ := f.svc.Get(ctx, second.ID); got.Status != models.JobStatusPending {
		t.Errorf("conflicting job status = %s, want pending", got.Status)
	}

	if _, err := f.svc.Start(ctx, other.ID); err != nil {
		t.Errorf("Start() for another scope = %v", err)
	}
	if _, err := f.svc.Start(ctx, first.ID); !errors.Is(err, models.ErrConflict) {
		t.Errorf("restarting a running job = %v, want conflict", err)
	}

	close(g.release)
	for _, id := range []string{first.ID, other.ID} {
		if err := f.svc.Wait(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	// The scope is free again.
	if _, err := f.svc.Start(ctx, second.ID); err != nil {
		t.Errorf("Start() after first finished = %v", err)
	}
	_ = f.svc.Wait(ctx, second.ID)
}

func TestStart_RowLeftRunningBlocks(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))
	ctx := context.Background()

	orphan := testutil.FixtureJob(func(j *models.BatchJob) {
		j.Status = models.JobStatusRunning
		at := testutil.RefTime
		j.StartedAt = &at
	})
	if err := f.jobs.Create(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	job, _ := f.svc.Create(ctx, models.ScopeAll, "")
	_, err := f.svc.Start(ctx, job.ID)
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) || conflict.BlockingID != orphan.ID {
		t.Fatalf("Start() = %v, want conflict blocked by %s", err, orphan.ID)
	}

	n, err := f.svc.RecoverInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RecoverInterrupted() = %d, %v", n, err)
	}
	recovered, _ := f.svc.Get(ctx, orphan.ID)
	if recovered.Status != models.JobStatusFailed || *recovered.ErrorSummary != InterruptedSummary {
		t.Errorf("orphan = %+v", recovered)
	}

	if _, err := f.svc.Start(ctx, job.ID); err != nil {
		t.Errorf("Start() after recovery = %v", err)
	}
	_ = f.svc.Wait(ctx, job.ID)
}

func TestStart_NotFound(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))
	if _, err := f.svc.Start(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Start(missing) = %v", err)
	}
}

func TestCancel_Pending(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))
	ctx := context.Background()

	job, _ := f.svc.Create(ctx, models.ScopeAll, "")
	cancelled, err := f.svc.Cancel(ctx, job.ID, "operator request")
	if err != nil {
		t.Fatalf("Cancel() = %v", err)
	}
	if cancelled.Status != models.JobStatusFailed || *cancelled.ErrorSummary != "cancelled: operator request" {
		t.Errorf("job = %+v", cancelled)
	}

	if _, err := f.svc.Cancel(ctx, job.ID, "again"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("Cancel() on failed job = %v, want conflict", err)
	}
	if _, err := f.svc.Start(ctx, job.ID); !errors.Is(err, models.ErrConflict) {
		t.Errorf("Start() on failed job = %v, want conflict", err)
	}
}

func TestCancel_Running(t *testing.T) {
	g := newGate()
	catalog := &stubCatalog{products: products(5, "dairy")}
	f := setup(t, catalog, g.scorer(), func(c *config.BatchConfig) { c.Workers = 1 })
	ctx := context.Background()

	job, _ := f.svc.Create(ctx, models.ScopeAll, "")
	if _, err := f.svc.Start(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	<-g.entered

	type outcome struct {
		job *models.BatchJob
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		j, err := f.svc.Cancel(ctx, job.ID, "operator request")
		done <- outcome{j, err}
	}()

	// Let the item in flight finish only once the cancellation is recorded.
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.svc.mu.Lock()
		r := f.svc.byID[job.ID]
		requested := r != nil && r.reason != ""
		f.svc.mu.Unlock()
		if requested {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cancellation never recorded")
		}
		time.Sleep(time.Millisecond)
	}
	close(g.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Cancel() = %v", res.err)
	}
	j := res.job
	if j.Status != models.JobStatusFailed || j.ErrorSummary == nil || *j.ErrorSummary != "cancelled: operator request" {
		t.Errorf("job = %+v", j)
	}
	if j.ItemsProcessed != 1 || j.ItemsSucceeded != 1 {
		t.Errorf("processed %d items after cancel, want 1", j.ItemsProcessed)
	}
	assertTallies(t, j)
}

func TestCancel_RunningWithWorkers(t *testing.T) {
	const total, workers = 8, 3
	g := newGate()
	catalog := &stubCatalog{products: products(total, "dairy")}
	f := setup(t, catalog, g.scorer(), func(c *config.BatchConfig) { c.Workers = workers })
	ctx := context.Background()

	job, _ := f.svc.Create(ctx, models.ScopeAll, "")
	if _, err := f.svc.Start(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < workers; i++ {
		<-g.entered
	}

	done := make(chan *models.BatchJob, 1)
	go func() {
		j, err := f.svc.Cancel(ctx, job.ID, "stock count")
		if err != nil {
			t.Errorf("Cancel() = %v", err)
		}
		done <- j
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		f.svc.mu.Lock()
		r := f.svc.byID[job.ID]
		requested := r != nil && r.reason != ""
		f.svc.mu.Unlock()
		if requested {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cancellation never recorded")
		}
		time.Sleep(time.Millisecond)
	}
	close(g.release)

	j := <-done
	if j == nil {
		t.FailNow()
	}
	if j.Status != models.JobStatusFailed || j.ErrorSummary == nil || *j.ErrorSummary != "cancelled: stock count" {
		t.Errorf("job = %+v", j)
	}
	if j.ItemsProcessed >= total {
		t.Errorf("processed %d of %d items, want the pass cut short", j.ItemsProcessed, total)
	}
	if j.ItemsProcessed != workers || j.ItemsSucceeded != workers {
		t.Errorf("processed %d, succeeded %d; want the %d items in flight", j.ItemsProcessed, j.ItemsSucceeded, workers)
	}
	assertTallies(t, j)
	if len(g.entered) != 0 {
		t.Errorf("%d items started after cancellation", len(g.entered))
	}
}

func TestScheduler(t *testing.T) {
	if s, err := NewScheduler(nil, config.SchedulerConfig{}, slog.Default()); s != nil || err != nil {
		t.Errorf("NewScheduler(no cron) = %v, %v", s, err)
	}
	if _, err := NewScheduler(nil, config.SchedulerConfig{Cron: "not a schedule"}, slog.Default()); err == nil {
		t.Error("NewScheduler(bad cron) succeeded")
	}

	g := newGate()
	f := setup(t, &stubCatalog{products: products(1, "dairy")}, g.scorer())
	ctx := context.Background()

	s, err := NewScheduler(f.svc, config.SchedulerConfig{Cron: "@every 1h"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	s.tick()
	<-g.entered
	s.tick()

	jobs, err := f.svc.List(ctx, models.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1 (busy tick must not create a job)", len(jobs))
	}
	if jobs[0].Trigger != models.JobTriggerSchedule || jobs[0].Status != models.JobStatusRunning {
		t.Errorf("job = %+v", jobs[0])
	}
	if got := f.events.Events(notify.EventJobFinished); len(got) != 0 {
		t.Errorf("job.finished events = %d, want 0 while running", len(got))
	}

	close(g.release)
	if err := f.svc.Wait(ctx, jobs[0].ID); err != nil {
		t.Fatal(err)
	}

	s.tick()
	jobs, err = f.svc.List(ctx, models.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d after scope freed, want 2", len(jobs))
	}
	for _, j := range jobs {
		_ = f.svc.Wait(ctx, j.ID)
	}
}

func TestBusy(t *testing.T) {
	f := setup(t, &stubCatalog{}, scorerFunc(okScorer))
	ctx := context.Background()

	if id, err := f.svc.Busy(ctx, models.ScopeAll); err != nil || id != "" {
		t.Errorf("Busy(all) = %q, %v; want free", id, err)
	}
	if _, err := f.svc.Busy(ctx, "shelf 3"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Busy(bad scope) = %v, want validation error", err)
	}

	orphan := testutil.FixtureJob(func(j *models.BatchJob) {
		j.Scope = "category:dairy"
		j.Status = models.JobStatusRunning
	})
	if err := f.jobs.Create(ctx, orphan); err != nil {
		t.Fatal(err)
	}
	if id, err := f.svc.Busy(ctx, "category: dairy"); err != nil || id != orphan.ID {
		t.Errorf("Busy(category:dairy) = %q, %v; want %s", id, err, orphan.ID)
	}
	if id, err := f.svc.Busy(ctx, models.ScopeAll); err != nil || id != "" {
		t.Errorf("Busy(all) = %q, %v; scopes are independent", id, err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	cfg := config.Default()
	clock := util.NewManualClock(testutil.RefTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	productRepo := repository.NewProductRepository(db.DB)
	factorRepo := repository.NewFactorRepository(db.DB)
	seed := []struct {
		days           int
		waste, storage float64
	}{
		{1, 0.9, 0.1},
		{30, 0.05, 0.95},
	}
	for _, s := range seed {
		p := testutil.FixtureExpiringProduct(s.days)
		if err := productRepo.Upsert(ctx, nil, p); err != nil {
			t.Fatal(err)
		}
		snap := testutil.FixtureSnapshot(p.ID, func(fs *models.FactorSnapshot) {
			fs.Factors.HistoricalWaste = s.waste
			fs.Factors.StorageConditions = s.storage
		})
		if err := factorRepo.Append(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	riskSvc := risk.NewService(db.DB, cfg, clock, logger)
	alertSvc := alerts.NewService(db.DB, cfg.Alerts, clock, logger)
	svc := NewService(db.DB, riskSvc.Catalog(), riskSvc, alertSvc, cfg.Batch, clock, logger)

	job, err := svc.Run(ctx, models.ScopeAll, models.JobTriggerCLI)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusSucceeded || job.ItemsProcessed != 2 {
		t.Fatalf("job = %+v", job)
	}

	counts, err := riskSvc.TierCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.TierCritical] != 1 || counts[models.TierLow] != 1 {
		t.Errorf("tier counts = %v", counts)
	}

	open, err := alertSvc.ListOpen(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].Severity != models.TierCritical {
		t.Errorf("open alerts = %+v", open)
	}

	risks, _ := riskSvc.ListRisks(ctx, models.RiskFilter{})
	for _, r := range risks {
		if r.JobID == nil || *r.JobID != job.ID {
			t.Errorf("risk %s JobID = %v, want %s", r.ProductID, r.JobID, job.ID)
		}
	}

	// A second pass with unchanged inputs opens nothing new.
	if _, err := svc.Run(ctx, models.ScopeAll, models.JobTriggerCLI); err != nil {
		t.Fatal(err)
	}
	open, _ = alertSvc.ListOpen(ctx, "")
	if len(open) != 1 {
		t.Errorf("open alerts after rerun = %d, want 1", len(open))
	}
}

func TestRun_MissingFactorsCountAsFailed(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	cfg := config.Default()
	clock := util.NewManualClock(testutil.RefTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	productRepo := repository.NewProductRepository(db.DB)
	factorRepo := repository.NewFactorRepository(db.DB)
	const total, observed = 5, 1
	for i := 0; i < total; i++ {
		p := testutil.FixtureExpiringProduct(3 + i)
		if err := productRepo.Upsert(ctx, nil, p); err != nil {
			t.Fatal(err)
		}
		if i < observed {
			if err := factorRepo.Append(ctx, testutil.FixtureSnapshot(p.ID)); err != nil {
				t.Fatal(err)
			}
		}
	}

	riskSvc := risk.NewService(db.DB, cfg, clock, logger)
	alertSvc := alerts.NewService(db.DB, cfg.Alerts, clock, logger)
	svc := NewService(db.DB, riskSvc.Catalog(), riskSvc, alertSvc, cfg.Batch, clock, logger)

	job, err := svc.Run(ctx, models.ScopeAll, models.JobTriggerCLI)
	if err != nil {
		t.Fatal(err)
	}
	if job.ItemsProcessed != total || job.ItemsFailed != total-observed || job.ItemsSucceeded != observed {
		t.Errorf("job = %+v", job)
	}
	assertTallies(t, job)
	if job.Status != models.JobStatusFailed || job.ErrorSummary == nil ||
		!strings.HasPrefix(*job.ErrorSummary, "failure threshold exceeded") ||
		!strings.Contains(*job.ErrorSummary, "no factor snapshot") {
		t.Errorf("job = %+v, want failure threshold from missing factors", job)
	}

	risks, err := riskSvc.ListRisks(ctx, models.RiskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(risks) != observed {
		t.Errorf("risk entries = %d, want %d", len(risks), observed)
	}
}
