// Package agent runs the discovery and detail loops that ingest Jenkins builds.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhoci/rhoci/internal/catalog"
	"github.com/rhoci/rhoci/internal/classifier"
	"github.com/rhoci/rhoci/internal/config"
	"github.com/rhoci/rhoci/internal/jenkins"
	"github.com/rhoci/rhoci/internal/metrics"
	"github.com/rhoci/rhoci/internal/models"
	"github.com/rhoci/rhoci/internal/normalize"
	"github.com/rhoci/rhoci/internal/utils"
)

// CIClient is the subset of the Jenkins client the agent drives.
type CIClient interface {
	ListJobs(ctx context.Context) ([]models.Job, error)
	ListBuilds(ctx context.Context, job string) ([]jenkins.BuildRef, error)
	FetchBuild(ctx context.Context, job string, number int) (jenkins.RawBuild, error)
	FetchConsole(ctx context.Context, job string, number int) (string, error)
	FetchTestReport(ctx context.Context, job string, number int) (*jenkins.RawTestReport, error)
}

// Store is the persistence port used by both loops.
type Store interface {
	InsertJobIfAbsent(ctx context.Context, job models.Job) (bool, error)
	EnqueueBuild(ctx context.Context, key models.BuildKey, url string, now time.Time) (bool, error)
	DueBuilds(ctx context.Context, now time.Time, limit int) ([]models.PendingBuild, error)
	DeferBuild(ctx context.Context, key models.BuildKey, next time.Time, attempts, notFound int, reason string) error
	AbandonBuild(ctx context.Context, key models.BuildKey, reason string, now time.Time) error
	CompleteBuild(ctx context.Context, build models.Build, tests []models.Test, matches []models.FailureMatch, now time.Time) error
	CountByState(ctx context.Context) (map[models.IngestState]int, error)
}

// Agent owns the two ingestion loops. The loops share nothing but the store.
type Agent struct {
	cfg        config.AgentConfig
	ci         CIClient
	store      Store
	catalog    *catalog.Catalog
	classifier *classifier.Classifier
	jobFilter  *regexp.Regexp
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	group *errgroup.Group
}

// New wires an agent. It performs no I/O.
func New(cfg config.AgentConfig, ci CIClient, store Store, cat *catalog.Catalog, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		return nil, errors.New("agent requires a catalog")
	}
	cfg = withDefaults(cfg)

	var filter *regexp.Regexp
	if cfg.JobPattern != "" {
		re, err := regexp.Compile(cfg.JobPattern)
		if err != nil {
			return nil, fmt.Errorf("compile job pattern: %w", err)
		}
		filter = re
	}

	return &Agent{
		cfg:        cfg,
		ci:         ci,
		store:      store,
		catalog:    cat,
		classifier: classifier.New(cfg.MaxExcerptBytes),
		jobFilter:  filter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func withDefaults(cfg config.AgentConfig) config.AgentConfig {
	def := config.Default().Agent
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = def.DiscoveryInterval
	}
	if cfg.DetailInterval <= 0 {
		cfg.DetailInterval = def.DetailInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.NotFoundDelay <= 0 {
		cfg.NotFoundDelay = def.NotFoundDelay
	}
	if cfg.InProgressDelay <= 0 {
		cfg.InProgressDelay = def.InProgressDelay
	}
	if cfg.MaxNotFound <= 0 {
		cfg.MaxNotFound = def.MaxNotFound
	}
	return cfg
}

// Start launches both loops and returns without waiting. It is a no-op when the agent is
// disabled or already started.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cfg.Enabled {
		a.logger.Info("ingestion agent disabled by configuration")
		return
	}
	if a.group != nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.loop(gctx, "discovery", a.cfg.DiscoveryInterval, func(ctx context.Context) error {
			_, err := a.DiscoverOnce(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		a.loop(gctx, "detail", a.cfg.DetailInterval, func(ctx context.Context) error {
			_, err := a.ProcessDue(ctx)
			return err
		})
		return nil
	})
	a.group = g

	a.logger.Info("ingestion agent started",
		slog.Duration("discovery_interval", a.cfg.DiscoveryInterval),
		slog.Duration("detail_interval", a.cfg.DetailInterval),
		slog.Int("workers", a.cfg.Workers),
	)
}

// Wait blocks until both loops have exited, in-flight units included.
func (a *Agent) Wait() error {
	a.mu.Lock()
	g := a.group
	a.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Run starts the agent and blocks until ctx is cancelled and the loops drain.
func (a *Agent) Run(ctx context.Context) error {
	a.Start(ctx)
	return a.Wait()
}

func (a *Agent) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			break
		}
		if err := tick(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("ingestion tick failed", slog.String("loop", name), slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	a.logger.Info("ingestion loop stopped", slog.String("loop", name))
}

// DiscoverOnce lists jobs and their recent builds and enqueues every build not seen before.
// It returns the number of newly enqueued builds.
func (a *Agent) DiscoverOnce(ctx context.Context) (int, error) {
	jobs, err := a.ci.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	enqueued := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if a.jobFilter != nil && !a.jobFilter.MatchString(job.Name) {
			continue
		}
		if _, err := a.store.InsertJobIfAbsent(ctx, job); err != nil {
			a.logger.Warn("failed to record job", slog.String("job", job.Name), slog.Any("error", err))
		}

		refs, err := a.ci.ListBuilds(ctx, job.Name)
		if err != nil {
			a.logger.Warn("failed to list builds", slog.String("job", job.Name), slog.Any("error", err))
			continue
		}
		for _, ref := range refs {
			key := models.BuildKey{Job: ref.Job, Number: ref.Number}
			inserted, err := a.store.EnqueueBuild(ctx, key, ref.URL, a.now())
			if err != nil {
				a.logger.Warn("failed to enqueue build", slog.String("build", key.String()), slog.Any("error", err))
				continue
			}
			if inserted {
				enqueued++
				a.logger.Debug("discovered build", slog.String("build", key.String()))
			}
		}
	}

	metrics.AddDiscovered(enqueued)
	if enqueued > 0 {
		a.logger.Info("discovery enqueued builds", slog.Int("count", enqueued))
	}
	a.publishPending(ctx)
	return enqueued, nil
}

// ProcessDue claims a batch of due pending builds and processes them with bounded
// concurrency. Once a unit starts it runs to completion even if ctx is cancelled.
func (a *Agent) ProcessDue(ctx context.Context) (int, error) {
	due, err := a.store.DueBuilds(ctx, a.now(), a.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load due builds: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	// Worker slots are acquired under ctx so no unit starts once cancellation is seen.
	var g errgroup.Group
	slots := make(chan struct{}, a.cfg.Workers)
	started := 0
dispatch:
	for _, pending := range due {
		select {
		case <-ctx.Done():
			break dispatch
		case slots <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-slots
			break
		}
		started++
		unitCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			defer func() { <-slots }()
			a.processBuild(unitCtx, pending)
			return nil
		})
	}
	_ = g.Wait()

	a.publishPending(context.WithoutCancel(ctx))
	return started, nil
}

func (a *Agent) processBuild(ctx context.Context, p models.PendingBuild) {
	start := time.Now()
	outcome := a.ingest(ctx, p)
	metrics.ObserveBuild(time.Since(start), outcome)
}

func (a *Agent) ingest(ctx context.Context, p models.PendingBuild) string {
	key := p.Key
	logger := a.logger.With(slog.String("build", key.String()))

	raw, err := a.ci.FetchBuild(ctx, key.Job, key.Number)
	if err != nil {
		return a.fetchFailed(ctx, logger, p, err)
	}
	if raw.Building {
		a.deferBuild(ctx, logger, p, a.now().Add(a.cfg.InProgressDelay), p.Attempts, p.NotFound, "build in progress")
		return metrics.OutcomeDeferred
	}

	console, err := a.ci.FetchConsole(ctx, key.Job, key.Number)
	if err != nil {
		return a.fetchFailed(ctx, logger, p, err)
	}

	report, err := a.ci.FetchTestReport(ctx, key.Job, key.Number)
	switch {
	case jenkins.IsNotFound(err):
		report = nil
	case err != nil:
		return a.retry(ctx, logger, p, err)
	}

	build, tests, warnings := normalize.Normalize(raw, report)
	for _, w := range warnings {
		logger.Warn("skipped malformed test case", slog.Any("error", w))
	}
	matches := a.classifier.ClassifyBuild(key, console, tests, a.catalog)

	if err := a.store.CompleteBuild(ctx, build, tests, matches, a.now()); err != nil {
		if errors.Is(err, models.ErrNotPending) {
			logger.Debug("build no longer pending")
			return metrics.OutcomeSuccess
		}
		return a.retry(ctx, logger, p, err)
	}

	for _, m := range matches {
		metrics.AddMatch(m.Category)
	}
	logger.Info("build ingested",
		slog.String("status", string(build.Status)),
		slog.Int("tests", len(tests)),
		slog.Int("matches", len(matches)),
	)
	return metrics.OutcomeSuccess
}

// fetchFailed applies the not-found policy to missing builds and backoff to everything else.
func (a *Agent) fetchFailed(ctx context.Context, logger *slog.Logger, p models.PendingBuild, err error) string {
	if !jenkins.IsNotFound(err) {
		return a.retry(ctx, logger, p, err)
	}

	misses := p.NotFound + 1
	if misses >= a.cfg.MaxNotFound {
		if aerr := a.store.AbandonBuild(ctx, p.Key, err.Error(), a.now()); aerr != nil {
			logger.Error("failed to abandon build", slog.Any("error", aerr))
			return metrics.OutcomeError
		}
		logger.Warn("abandoned build missing from jenkins", slog.Int("not_found", misses))
		return metrics.OutcomeAbandoned
	}
	a.deferBuild(ctx, logger, p, a.now().Add(a.cfg.NotFoundDelay), p.Attempts, misses, err.Error())
	return metrics.OutcomeNotFound
}

func (a *Agent) retry(ctx context.Context, logger *slog.Logger, p models.PendingBuild, err error) string {
	delay := utils.ExpBackoff(a.cfg.BackoffBase, a.cfg.BackoffMax, p.Attempts)
	logger.Warn("build ingestion failed, will retry",
		slog.Any("error", err),
		slog.Int("attempt", p.Attempts+1),
		slog.Duration("retry_in", delay),
	)
	a.deferBuild(ctx, logger, p, a.now().Add(delay), p.Attempts+1, p.NotFound, err.Error())
	return metrics.OutcomeError
}

func (a *Agent) deferBuild(ctx context.Context, logger *slog.Logger, p models.PendingBuild, next time.Time, attempts, notFound int, reason string) {
	if err := a.store.DeferBuild(ctx, p.Key, next, attempts, notFound, reason); err != nil {
		logger.Error("failed to reschedule build", slog.Any("error", err))
	}
}

func (a *Agent) publishPending(ctx context.Context) {
	counts, err := a.store.CountByState(ctx)
	if err != nil {
		a.logger.Debug("failed to count pending builds", slog.Any("error", err))
		return
	}
	metrics.SetPending(counts[models.StatePending])
}
