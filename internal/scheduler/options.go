package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs reharvesting daily at 02:00.
const DefaultSchedule = "0 2 * * *"

type options struct {
	Logger      *zap.Logger
	Cron        *cron.Cron
	Parser      cron.Parser
	Location    *time.Location
	Schedule    string
	Timeout     time.Duration
	StopTimeout time.Duration
}

// Option applies configuration to the scheduler service.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:      zap.NewNop(),
		Location:    time.UTC,
		Schedule:    DefaultSchedule,
		StopTimeout: 5 * time.Second,
	}
}

// WithLogger injects the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithCronParser allows replacing the cron expression parser.
func WithCronParser(p cron.Parser) Option {
	return func(o *options) {
		o.Parser = p
	}
}

// WithLocation sets the scheduler timezone location.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.Location = loc
	}
}

// WithSchedule overrides the reharvesting cron expression.
func WithSchedule(expr string) Option {
	return func(o *options) {
		o.Schedule = expr
	}
}

// WithTimeout bounds a single reharvesting run. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.Timeout = d
	}
}

// WithStopTimeout bounds how long Stop waits for a running job.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) {
		o.StopTimeout = d
	}
}
