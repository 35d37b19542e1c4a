package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	metricsShutdownTimeout = 5 * time.Second
	maxSubscribeInterval   = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription closed")

// Run starts the lease triggers and blocks until ctx is done. It returns
// once the task in flight has been finalized. Bootstrap must be called
// first.
func (a *Agent) Run(ctx context.Context) error {
	if a.queue == nil || a.store == nil || a.supervisor == nil {
		return errors.New("agent is not bootstrapped")
	}

	a.log.Info().
		Bool("periodic", a.config.Periodic).
		Dur("delay", a.config.PeriodicInterval()).
		Msg("Agent started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.subscribe(gctx)
		return nil
	})

	if a.config.Periodic {
		g.Go(func() error {
			scheduler := newScheduler(a.config.PeriodicInterval(), a.log, func() {
				a.CheckQueue(gctx, TriggerPeriodic)
			})
			scheduler.Start()
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	if addr := a.config.Metrics.Address; addr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx, addr)
		})
	}

	// Pick up whatever was queued while the agent was down
	a.CheckQueue(gctx, TriggerManual)

	err := g.Wait()
	a.Wait()
	return err
}

// subscribe triggers a lease for every task-queued event until ctx is done.
// While the subscription is down the agent relies on polling and the
// subscription is retried with backoff.
func (a *Agent) subscribe(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.retryBackoff
	policy.MaxInterval = maxSubscribeInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := a.queue.Subscribe(ctx, func(taskID string) {
			a.log.Debug().Str("task_id", taskID).Msg("Task queued")
			a.CheckQueue(ctx, TriggerSubscription)
		})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errSubscriptionClosed
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		a.metrics.SubscribeErrorsTotal.Inc()
		a.log.Error().
			Err(err).
			Dur("retry_in", next).
			Msg("Failed to subscribe to task notifications, relying on polling")
	}

	_ = backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
}

func (a *Agent) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("address", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
