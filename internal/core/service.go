package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Service exposes the ledger operations: allocation lifecycle, reharvesting,
// bulk import, audit, notifications, and read projections.
type Service struct {
	store         PersistentStore
	logger        *zap.Logger
	metrics       MetricsRecorder
	defaultActor  Actor
	notifications *notificationQueue
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger == nil {
			logger = zap.NewNop()
		}
		s.logger = logger.Named("ledger")
	}
}

// WithMetricsRecorder sets the recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithActor sets the actor used when the context carries none.
func WithActor(actor Actor) Option {
	return func(s *Service) {
		if actor.ID != "" {
			s.defaultActor = actor
		}
	}
}

// WithNotificationLimit caps the transient notification queue.
func WithNotificationLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.notifications.limit = limit
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:         store,
		logger:        zap.NewNop(),
		metrics:       noopMetrics{},
		defaultActor:  DefaultActor,
		notifications: newNotificationQueue(defaultNotificationLimit),
		now:           store.NowFunc(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	// DefaultActor performs operations when nothing else is configured.
	DefaultActor = Actor{ID: "P_ADMIN", Name: "Admin"}
	// SystemActor performs scheduled jobs.
	SystemActor = Actor{ID: "SYSTEM", Name: "System"}
)

type actorKey struct{}

// ContextWithActor attaches the acting user to ctx.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user carried by ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.ID != ""
}

func (s *Service) actorFor(ctx context.Context) Actor {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return s.defaultActor
}
