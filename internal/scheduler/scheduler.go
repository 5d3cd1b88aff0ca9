// Package scheduler triggers recurring crawl runs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/ingest"
)

// Runner executes one crawl run for a site.
type Runner interface {
	Run(ctx context.Context, siteID string, params ingest.QueryParams) (ingest.CrawlSummary, error)
}

// Job is one scheduled crawl: a cron spec plus the query parameters the run
// executes with.
type Job struct {
	Spec   string
	Params ingest.QueryParams
}

// Scheduler owns the cron loop. Each site runs at most one crawl at a time;
// a tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *zap.Logger
	mu      sync.Mutex
	running map[string]bool
}

// New builds a scheduler with the given jobs registered. It returns an error
// on the first invalid cron spec.
func New(runner Runner, jobs map[string]Job, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		logger:  logger.Named("scheduler"),
		running: make(map[string]bool),
	}
	for siteID, job := range jobs {
		siteID, job := siteID, job
		if _, err := s.cron.AddFunc(job.Spec, func() {
			s.fire(siteID, job.Params)
		}); err != nil {
			return nil, fmt.Errorf("schedule for site %q: %w", siteID, err)
		}
		s.logger.Info("crawl scheduled",
			zap.String("site", siteID),
			zap.String("spec", job.Spec),
		)
	}
	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(siteID string, params ingest.QueryParams) {
	if !s.begin(siteID) {
		s.logger.Warn("previous run still in progress, skipping tick",
			zap.String("site", siteID),
		)
		return
	}
	defer s.end(siteID)

	summary, err := s.runner.Run(context.Background(), siteID, params)
	if err != nil {
		s.logger.Error("scheduled run failed",
			zap.String("site", siteID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("scheduled run finished",
		zap.String("site", siteID),
		zap.String("run_id", summary.RunID),
		zap.Int("new", summary.New),
		zap.Int("duplicates", summary.Duplicates),
		zap.Bool("aborted", summary.Aborted),
	)
}

func (s *Scheduler) begin(siteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[siteID] {
		return false
	}
	s.running[siteID] = true
	return true
}

func (s *Scheduler) end(siteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, siteID)
}
