package agent

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"github.com/harun/monet/internal/metrics"
	"github.com/harun/monet/internal/tracing"
	"github.com/harun/monet/pkg/task"
)

// CheckQueue leases one task if the agent is idle and processes it in the
// background. It reports whether a task was leased.
func (a *Agent) CheckQueue(ctx context.Context, trigger string) bool {
	if !a.busy.CompareAndSwap(false, true) {
		a.metrics.LeasesTotal.WithLabelValues(trigger, "busy").Inc()
		return false
	}
	a.metrics.SetBusy(true)

	id, ok, err := a.queue.Lease(ctx)
	if err != nil {
		a.log.Error().Err(err).Str("trigger", trigger).Msg("Failed to lease a task")
		a.metrics.LeaseErrorsTotal.Inc()
		a.metrics.LeasesTotal.WithLabelValues(trigger, "error").Inc()
		a.release()
		return false
	}
	if !ok {
		a.metrics.LeasesTotal.WithLabelValues(trigger, "empty").Inc()
		a.release()
		return false
	}

	a.metrics.LeasesTotal.WithLabelValues(trigger, "leased").Inc()
	a.log.Info().Str("task_id", id).Str("trigger", trigger).Msg("Leased task")

	a.inFlight.Add(1)
	go func() {
		defer a.inFlight.Done()
		a.process(context.WithoutCancel(ctx), id, trigger)
	}()
	return true
}

func (a *Agent) release() {
	a.busy.Store(false)
	a.metrics.SetBusy(false)
}

// process drives one leased task to completion. Every path ends in finalize
// or returnToQueue, both of which clear the busy flag.
func (a *Agent) process(ctx context.Context, id, trigger string) {
	ctx = tracing.WithTaskID(tracing.WithAgentID(ctx, a.id), id)
	ctx, span := tracing.StartSpan(ctx, "agent.process", tracing.AttrTrigger.String(trigger))
	logger := tracing.LoggerFromContext(ctx, a.logger.GetZerolog())

	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	t, err := a.store.Get(ctx, id)
	if err != nil {
		spanErr = err
		if errors.Is(err, task.ErrNotFound) {
			logger.Warn().Msg("Leased task does not exist")
			a.metrics.TasksTotal.WithLabelValues(metrics.OutcomeNotFound).Inc()
		} else {
			logger.Error().Err(err).Msg("Failed to fetch leased task")
			a.metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		}
		a.finalize(ctx, &task.Task{ID: id})
		return
	}

	if !t.HasRequiredInputs() {
		logger.Error().Str("missing", t.MissingInput()).Msg("Task is missing an input, skipping")
		a.metrics.TasksTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		a.finalize(ctx, t)
		return
	}

	staged, err := a.stage(t)
	if err != nil {
		spanErr = err
		logger.Error().Err(err).Msg("Failed to stage task inputs, returning task to the queue")
		a.returnToQueue(ctx, t)
		return
	}
	defer staged.remove(logger)

	if err := t.MarkStarted(a.now()); err != nil {
		spanErr = err
		logger.Error().Err(err).Str("state", string(t.State)).Msg("Task cannot be started, skipping")
		a.metrics.TasksTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		a.finalize(ctx, t)
		return
	}
	if err := a.store.Save(ctx, t); err != nil {
		logger.Error().Err(err).Msg("Failed to save started task")
		a.metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
	}

	renderCtx, renderSpan := tracing.StartSpan(ctx, "supervisor.run")
	result, err := a.supervisor.Run(renderCtx, t, staged.inputs())
	renderSpan.SetAttributes(tracing.AttrExitCode.Int(result.ExitCode))
	tracing.EndSpan(renderSpan, err)
	if err != nil {
		spanErr = err
		a.metrics.StoreErrorsTotal.WithLabelValues("save").Inc()
	}

	switch {
	case !result.Launched:
		a.metrics.RendererExitsTotal.WithLabelValues("launch_error").Inc()
	case result.ExitCode == 0:
		a.metrics.RendererExitsTotal.WithLabelValues("success").Inc()
	default:
		a.metrics.RendererExitsTotal.WithLabelValues("error").Inc()
	}
	if result.Launched {
		a.metrics.TaskDuration.Observe(result.Duration.Seconds())
	}
	a.metrics.TasksTotal.WithLabelValues(string(t.State)).Inc()

	a.finalize(ctx, t)
}

// finalize acknowledges the lease and makes the agent available again
func (a *Agent) finalize(ctx context.Context, t *task.Task) {
	logger := tracing.LoggerFromContext(ctx, a.logger.GetZerolog())

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.retryBackoff

	err := backoff.Retry(func() error {
		return a.queue.Acknowledge(ctx, t.ID)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(a.finalizeAttempts-1)), ctx))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to acknowledge task, it stays in the agent list")
	} else {
		logger.Info().Str("state", string(t.State)).Msg("Finished processing task")
	}

	a.release()
}

// returnToQueue hands the lease back so another agent can take it
func (a *Agent) returnToQueue(ctx context.Context, t *task.Task) {
	logger := tracing.LoggerFromContext(ctx, a.logger.GetZerolog())

	if err := a.queue.ReturnToQueue(ctx, t.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to return task to the queue")
	} else {
		logger.Info().Msg("Returned task to the queue")
	}
	a.metrics.ReturnsTotal.Inc()
	a.metrics.TasksTotal.WithLabelValues(metrics.OutcomeReturned).Inc()

	a.release()
}
