// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single run of a scheduled job.
const DefaultJobTimeout = 30 * time.Minute

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
	busy map[string]bool
}

// NewScheduler creates a new job scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		logger:  logger,
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]Job),
		busy:    make(map[string]bool),
	}
}

// Add registers job under a 5-field cron spec.
func (s *Scheduler) Add(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name()]; ok {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", job.Name(), err)
	}
	s.jobs[job.Name()] = job
	return nil
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
}

// Stop gracefully stops all scheduled jobs. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers a registered job in the background.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	go s.run(job)
	return nil
}

// run executes job unless a previous run is still in progress.
func (s *Scheduler) run(job Job) {
	name := job.Name()

	s.mu.Lock()
	if s.busy[name] {
		s.mu.Unlock()
		s.logger.Warn("skipping job, previous run still active", slog.String("job", name))
		return
	}
	s.busy[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("starting scheduled job", slog.String("job", name))

	if err := job.Run(ctx); err != nil {
		s.logger.Error("scheduled job failed",
			slog.String("job", name),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("scheduled job completed",
		slog.String("job", name),
		slog.Duration("elapsed", time.Since(start)),
	)
}
