package agent

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// pollInterval rounds the configured delay up to the one second resolution
// of the scheduler
func pollInterval(delay time.Duration) time.Duration {
	if delay < time.Second {
		return time.Second
	}
	return delay.Round(time.Second)
}

// newScheduler creates a cron instance that calls check every interval.
// Ticks that find the previous check still running are skipped.
func newScheduler(interval time.Duration, logger zerolog.Logger, check func()) *cron.Cron {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(cron.Every(pollInterval(interval)), cron.FuncJob(check))
	return c
}
