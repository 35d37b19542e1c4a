package agent

import (
	"context"
	"fmt"

	"github.com/harun/monet/internal/config"
	"github.com/harun/monet/pkg/discovery"
	"github.com/harun/monet/pkg/queue"
	"github.com/harun/monet/pkg/supervisor"
	"github.com/harun/monet/pkg/taskstore"
)

// Bootstrap resolves the database descriptors through the service registry,
// when one is configured, and connects to the queue and task databases
func (a *Agent) Bootstrap(ctx context.Context) error {
	a.log.Info().Msg("Bootstrapping agent")

	a.discover(ctx)

	if a.queue == nil {
		qdb := a.config.Databases.Queue
		a.queue = queue.NewClient(queue.Config{
			Addr:     qdb.Addr(),
			Password: qdb.Password,
			DB:       qdb.DB,
			AgentID:  a.id,
			Logger:   a.logger.Component("queue"),
		})
		a.ownsQueue = true

		if err := a.queue.Ping(ctx); err != nil {
			// The driver keeps reconnecting, leases fail until it succeeds
			a.log.Warn().Err(err).Str("address", qdb.Addr()).Msg("Queue database is not reachable yet")
		}
	}

	if a.store == nil {
		tdb := a.config.Databases.Task
		store, err := taskstore.Open(ctx, taskstore.Config{
			URL:            tdb.URL,
			AppName:        tdb.Options.AppName,
			MaxPoolSize:    tdb.Options.MaxPoolSize,
			ConnectTimeout: tdb.Options.ConnectTimeout(),
			Logger:         a.logger.Component("taskstore"),
		})
		if err != nil {
			return fmt.Errorf("failed to open task database: %w", err)
		}
		a.store = store
		a.ownsStore = true
	}

	program := a.config.Programs.NeuralDoodle
	a.supervisor = supervisor.New(supervisor.Config{
		Program: supervisor.Program{
			Command:          program.Command,
			Script:           program.Script,
			Arguments:        program.Arguments,
			WorkingDirectory: program.WorkingDirectory,
		},
		Store:        a.store,
		Logger:       a.logger.With().Str("agent_id", a.id).Logger(),
		SaveAttempts: a.finalizeAttempts,
		SaveBackoff:  a.retryBackoff,
		OnProgress: func(_ float64, err error) {
			a.metrics.ProgressUpdatesTotal.Inc()
			if err != nil {
				a.metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
			}
		},
		Now: a.now,
	})

	a.log.Info().
		Str("queue", a.config.Databases.Queue.Addr()).
		Str("working_directory", program.WorkingDirectory).
		Msg("Agent ready")
	return nil
}

// discover replaces the queue and task descriptors with the ones found in
// the service registry. Lookup problems keep the configured descriptors.
func (a *Agent) discover(ctx context.Context) {
	service := a.config.Databases.Service
	if a.registry == nil {
		if service == nil {
			return
		}

		registry, err := discovery.NewEtcdRegistry(discovery.Config{
			Endpoints: service.Hosts,
			CAFile:    service.SSLOptions.CA,
			CertFile:  service.SSLOptions.Cert,
			KeyFile:   service.SSLOptions.Key,
			Logger:    a.logger.Component("discovery"),
		})
		if err != nil {
			a.log.Error().Err(err).Msg("Failed to connect to the service database, using configured databases")
			return
		}
		a.registry = registry
		a.ownsRegistry = true
	}

	var qdb config.QueueDatabaseConfig
	if a.lookup(ctx, discovery.QueueDatabaseKey, &qdb) {
		a.config.Databases.Queue = qdb
	}

	var tdb config.TaskDatabaseConfig
	if a.lookup(ctx, discovery.TaskDatabaseKey, &tdb) {
		a.config.Databases.Task = tdb
	}
}

func (a *Agent) lookup(ctx context.Context, key string, dst any) bool {
	raw, found, err := a.registry.Get(ctx, key)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Failed to look up service descriptor")
		return false
	}
	if !found {
		a.log.Warn().Str("key", key).Msg("Service descriptor not registered, using configured value")
		return false
	}

	if err := config.DecodeDescriptor(raw, dst); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Failed to decode service descriptor, using configured value")
		return false
	}

	a.log.Info().Str("key", key).Msg("Resolved service descriptor")
	return true
}
