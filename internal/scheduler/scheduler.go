// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler wraps a cron runner that skips a job while its previous run is still going
type Scheduler struct {
	cron *cron.Cron
	jobs []string
}

// New creates an idle scheduler
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Add registers job on its schedule
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no run function", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { runJob(job) }); err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	s.jobs = append(s.jobs, job.Name)
	return nil
}

// Jobs returns the names of registered jobs in registration order
func (s *Scheduler) Jobs() []string {
	return s.jobs
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	log.Printf("Scheduler started with %d jobs: %v", len(s.jobs), s.jobs)
	s.cron.Start()
}

// Stop prevents new runs; the returned context is done when running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func runJob(job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("[CRON] %s failed after %s: %v", job.Name, time.Since(start), err)
		return err
	}
	log.Printf("[CRON] %s finished in %s", job.Name, time.Since(start))
	return nil
}
