// Package scheduler runs named jobs on fixed intervals. The serve command
// uses it to keep the currency and weather caches warm and to checkpoint
// the history database.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rubiojr/yatra/pkg/log"
)

var ErrJobNotFound = errors.New("job not found")

// JobFunc is one run of a job. Errors are logged, they never stop the job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
	stop     chan struct{}
}

type Scheduler struct {
	jobs      map[string]*job
	ctx       context.Context
	ctxCancel context.CancelFunc
	mu        sync.RWMutex
	wg        sync.WaitGroup
	running   bool
	logger    *log.Logger
}

func New() *Scheduler {
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: log.For("scheduler"),
	}
}

// Add registers a job. An interval of 0 registers a job that only runs via
// RunOnce. Adding a job to a running scheduler starts it immediately.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) error {
	if interval < 0 {
		return fmt.Errorf("job %s: negative interval %v", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{name: name, interval: interval, run: fn}
	s.jobs[name] = j

	if s.running {
		s.startJobLocked(j)
		s.logger.Infof("Started job %s with interval %v", name, interval)
	} else if interval == 0 {
		s.logger.Debugf("Job %s has interval 0 (manual only)", name)
	}
	return nil
}

// Remove stops and unregisters a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.stop != nil {
		close(j.stop)
		j.stop = nil
	}
	delete(s.jobs, name)
	s.logger.Infof("Removed job %s", name)
	return nil
}

// Start launches every job: one run right away, then one per interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs configured")
	}

	s.ctx, s.ctxCancel = context.WithCancel(ctx)
	s.running = true

	s.logger.Infof("Starting scheduler with %d jobs:", len(s.jobs))
	for _, name := range s.namesLocked() {
		j := s.jobs[name]
		if j.interval == 0 {
			s.logger.Infof("  - %s: manual", name)
			continue
		}
		s.logger.Infof("  - %s: %v", name, j.interval)
		s.startJobLocked(j)
	}
	return nil
}

func (s *Scheduler) startJobLocked(j *job) {
	if j.interval == 0 {
		return
	}
	j.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.ctx, j, time.NewTicker(j.interval), j.stop)
}

func (s *Scheduler) loop(ctx context.Context, j *job, ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	defer ticker.Stop()

	s.runJob(ctx, j)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debugf("Job %s context cancelled", j.name)
			return
		case <-stop:
			s.logger.Debugf("Job %s stop signal received", j.name)
			return
		case <-ticker.C:
			s.runJob(ctx, j)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debugf("Running job %s", j.name)
	if err := j.safeRun(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warnf("Job %s failed: %v", j.name, err)
		return
	}
	s.logger.Debugf("Job %s finished in %v", j.name, time.Since(start))
}

func (j *job) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.run(ctx)
}

// RunOnce runs a single job synchronously, whether or not the scheduler is
// running.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return j.safeRun(ctx)
}

// RunAll runs every job concurrently and waits for them. The returned error
// joins the individual failures.
func (s *Scheduler) RunAll(ctx context.Context) error {
	s.mu.RLock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, name := range s.namesLocked() {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.RUnlock()

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.safeRun(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", j.name, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.logger.Infof("Stopping scheduler...")
	s.ctxCancel()
	for _, j := range s.jobs {
		if j.stop != nil {
			close(j.stop)
			j.stop = nil
		}
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Infof("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namesLocked()
}

func (s *Scheduler) namesLocked() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
