package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/monet/internal/config"
	"github.com/harun/monet/internal/logger"
	"github.com/harun/monet/internal/metrics"
	"github.com/harun/monet/pkg/discovery"
	"github.com/harun/monet/pkg/queue"
	"github.com/harun/monet/pkg/supervisor"
	"github.com/harun/monet/pkg/task"
)

// Lease triggers
const (
	TriggerPeriodic     = "periodic"
	TriggerSubscription = "subscription"
	TriggerManual       = "manual"
)

// Agent leases tasks from the queue database and renders them one at a time
type Agent struct {
	id     string
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	metrics    *metrics.Metrics
	registry   discovery.Registry
	queue      *queue.Client
	store      task.Store
	supervisor *supervisor.Supervisor

	// owned tracks the connections Close is responsible for
	ownsRegistry bool
	ownsQueue    bool
	ownsStore    bool

	busy     atomic.Bool
	inFlight sync.WaitGroup

	finalizeAttempts int
	retryBackoff     time.Duration
	now              func() time.Time
	newFileName      func() string
}

// Option configures an Agent
type Option func(*Agent)

// WithID sets the agent ID instead of a random one
func WithID(id string) Option {
	return func(a *Agent) {
		a.id = id
	}
}

// WithRegistry sets the service registry used during bootstrap
func WithRegistry(r discovery.Registry) Option {
	return func(a *Agent) {
		a.registry = r
	}
}

// WithQueue sets an already connected queue client
func WithQueue(q *queue.Client) Option {
	return func(a *Agent) {
		a.queue = q
	}
}

// WithStore sets an already opened task store
func WithStore(s task.Store) Option {
	return func(a *Agent) {
		a.store = s
	}
}

// WithMetrics sets the metrics the agent reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithRetryBackoff sets the first retry interval of acknowledgements and
// terminal saves
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Agent) {
		a.retryBackoff = d
	}
}

// New creates an agent. Connections are made by Bootstrap.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Agent {
	a := &Agent{
		id:               uuid.NewString(),
		config:           cfg,
		logger:           log,
		finalizeAttempts: 3,
		retryBackoff:     500 * time.Millisecond,
		now:              time.Now,
		newFileName:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		a.metrics = metrics.NewMetrics()
	}
	a.log = log.With().Str("component", "agent").Str("agent_id", a.id).Logger()

	return a
}

// ID returns the agent ID, which also names its private queue list
func (a *Agent) ID() string {
	return a.id
}

// Busy reports whether a task is being processed
func (a *Agent) Busy() bool {
	return a.busy.Load()
}

// Metrics returns the agent metrics
func (a *Agent) Metrics() *metrics.Metrics {
	return a.metrics
}

// Queue returns the queue client, nil before Bootstrap
func (a *Agent) Queue() *queue.Client {
	return a.queue
}

// Store returns the task store, nil before Bootstrap
func (a *Agent) Store() task.Store {
	return a.store
}

// Wait blocks until the task in flight, if any, has been finalized
func (a *Agent) Wait() {
	a.inFlight.Wait()
}

// Close waits for the task in flight and releases the connections the agent
// opened itself
func (a *Agent) Close(ctx context.Context) error {
	a.Wait()

	var errs []error
	if a.ownsQueue && a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.ownsStore && a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	if a.ownsRegistry && a.registry != nil {
		errs = append(errs, a.registry.Close())
	}

	a.log.Info().Msg("Agent stopped")
	return errors.Join(errs...)
}
