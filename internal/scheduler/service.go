// Package scheduler runs the reharvesting job on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"samledger/internal/core"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobSlug identifies the reharvesting entry.
const JobSlug = "reharvest"

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// Runner executes one reharvesting pass.
type Runner interface {
	RunReharvestingJob(ctx context.Context) (core.ReharvestReport, error)
}

// JobState records the outcome of the most recent run.
type JobState struct {
	Runs       int                  `json:"runs"`
	LastRunAt  *time.Time           `json:"last_run_at,omitempty"`
	LastStatus string               `json:"last_status,omitempty"`
	LastError  string               `json:"last_error,omitempty"`
	LastReport core.ReharvestReport `json:"last_report"`
}

// Service coordinates scheduled reharvesting.
type Service struct {
	runner      Runner
	cron        *cron.Cron
	parser      cron.Parser
	schedule    string
	timeout     time.Duration
	stopTimeout time.Duration
	location    *time.Location
	logger      *zap.Logger

	mu      sync.RWMutex
	entry   cron.EntryID
	state   JobState
	rootCtx context.Context
	// runMu serializes runs so a slow pass never overlaps the next tick.
	runMu sync.Mutex

	startOnce sync.Once
	startErr  error
	stopOnce  sync.Once
}

// NewService wires a scheduler around runner.
func NewService(runner Runner, opts ...Option) *Service {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	location := options.Location
	if location == nil {
		location = time.UTC
	}
	cronEngine := options.Cron
	if cronEngine == nil {
		cronEngine = cron.New(cron.WithLocation(location))
	}
	var zeroParser cron.Parser
	parser := options.Parser
	if parser == zeroParser {
		parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
	schedule := options.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Service{
		runner:      runner,
		cron:        cronEngine,
		parser:      parser,
		schedule:    schedule,
		timeout:     options.Timeout,
		stopTimeout: options.StopTimeout,
		location:    location,
		logger:      options.Logger.With(zap.String("job", JobSlug)),
	}
}

// Start registers the reharvesting entry and starts the cron loop. Runs use
// ctx as their parent context.
func (s *Service) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.rootCtx = ctx
		s.mu.Unlock()
		if err := s.scheduleJob(); err != nil {
			s.startErr = err
			return
		}
		s.cron.Start()
		s.logger.Info("scheduler started",
			zap.String("schedule", s.schedule),
			zap.String("location", s.location.String()),
			zap.Time("next_run", s.NextRun()))
	})
	return s.startErr
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the cron loop and waits for a running job, up to the stop timeout.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		ctx := s.cron.Stop()
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(s.stopTimeout):
			s.logger.Warn("timed out waiting for jobs to finish")
		}
	})
}

// RunNow executes reharvesting immediately, outside the schedule.
func (s *Service) RunNow(ctx context.Context) (core.ReharvestReport, error) {
	return s.execute(ctx)
}

// State returns the outcome of the most recent run.
func (s *Service) State() JobState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.LastRunAt != nil {
		at := *state.LastRunAt
		state.LastRunAt = &at
	}
	return state
}

// NextRun reports when the entry fires next, or the zero time before Start.
func (s *Service) NextRun() time.Time {
	s.mu.RLock()
	id := s.entry
	s.mu.RUnlock()
	if id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Service) scheduleJob() error {
	schedule, err := s.parser.Parse(s.schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.schedule, err)
	}
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.RLock()
		ctx := s.rootCtx
		s.mu.RUnlock()
		if ctx == nil {
			ctx = context.Background()
		}
		_, _ = s.execute(ctx)
	}))
	s.mu.Lock()
	s.entry = id
	s.mu.Unlock()
	return nil
}

func (s *Service) execute(ctx context.Context) (report core.ReharvestReport, runErr error) {
	if s.runner == nil {
		return core.ReharvestReport{}, errors.New("scheduler: no runner configured")
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	jobCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now().In(s.location)
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		report, runErr = s.runner.RunReharvestingJob(jobCtx)
	}()
	s.finalizeRun(start, report, runErr)
	return report, runErr
}

func (s *Service) finalizeRun(start time.Time, report core.ReharvestReport, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Runs++
	s.state.LastRunAt = &start
	if runErr != nil {
		s.state.LastStatus = statusFailed
		s.state.LastError = runErr.Error()
		s.logger.Error("reharvesting run failed", zap.Error(runErr))
		return
	}
	s.state.LastStatus = statusSuccess
	s.state.LastError = ""
	s.state.LastReport = report
	s.logger.Info("reharvesting run finished",
		zap.Int("reharvested", report.Reharvested),
		zap.Duration("elapsed", time.Since(start)))
}
