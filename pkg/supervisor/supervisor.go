package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/harun/monet/pkg/task"
)

// DefaultSaveAttempts is the number of tries for the terminal save
const DefaultSaveAttempts = 3

// ErrLaunch wraps a failure to start the renderer
var ErrLaunch = errors.New("failed to start renderer")

// Config holds supervisor configuration
type Config struct {
	Program Program
	Store   task.Store
	Logger  zerolog.Logger

	// SaveAttempts bounds the terminal save retries
	SaveAttempts int
	// SaveBackoff is the first retry interval of the terminal save
	SaveBackoff time.Duration

	// OnProgress is called after every intermediate save attempt
	OnProgress func(progress float64, err error)

	// Now returns the current time
	Now func() time.Time
}

// Result describes how a run ended
type Result struct {
	// Launched is false when the renderer could not be started
	Launched bool
	// ExitCode is the renderer exit code, -1 when it was killed by a signal
	ExitCode int
	Duration time.Duration
	Frames   int
}

// Supervisor runs the renderer for one task at a time
type Supervisor struct {
	program      Program
	store        task.Store
	logger       zerolog.Logger
	saveAttempts int
	saveBackoff  time.Duration
	onProgress   func(float64, error)
	now          func() time.Time
}

// New creates a supervisor
func New(cfg Config) *Supervisor {
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = DefaultSaveAttempts
	}
	if cfg.SaveBackoff <= 0 {
		cfg.SaveBackoff = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnProgress == nil {
		cfg.OnProgress = func(float64, error) {}
	}

	return &Supervisor{
		program:      cfg.Program,
		store:        cfg.Store,
		logger:       cfg.Logger.With().Str("component", "supervisor").Logger(),
		saveAttempts: cfg.SaveAttempts,
		saveBackoff:  cfg.SaveBackoff,
		onProgress:   cfg.OnProgress,
		now:          cfg.Now,
	}
}

// Program returns the renderer invocation
func (s *Supervisor) Program() Program {
	return s.program
}

// Run renders a started task and leaves it in a terminal state. The task is
// saved on every frame count change and once more at the end. The returned
// error is the terminal save error, if every attempt failed.
func (s *Supervisor) Run(ctx context.Context, t *task.Task, in Inputs) (Result, error) {
	// The renderer is not cancelled with ctx, so neither are the writes
	// that record its outcome
	ctx = context.WithoutCancel(ctx)

	logger := s.logger.With().Str("task_id", t.ID).Logger()
	framesDir := s.program.FramesDirectory()
	expected := s.program.ExpectedFrames(t)

	if err := prepareFrames(framesDir); err != nil {
		logger.Error().Err(err).Str("directory", framesDir).Msg("Failed to prepare frames directory")
	}

	watcher, err := newFrameWatcher(framesDir, logger, func(count int) {
		s.recordFrames(ctx, logger, t, framesDir, count, expected)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to watch frames directory, progress will not be reported")
	}
	stopWatch := func() {
		if watcher != nil {
			watcher.Stop()
		}
	}

	cmd := s.program.Cmd(t, in)
	logger.Info().
		Str("command", cmd.Path).
		Str("arguments", strings.Join(cmd.Args[1:], " ")).
		Float64("expected_frames", expected).
		Msg("Starting renderer")

	started := s.now()
	if err := cmd.Start(); err != nil {
		stopWatch()

		launchErr := fmt.Errorf("%w %q: %w", ErrLaunch, s.program.Command, err)
		logger.Error().Err(launchErr).Msg("Failed to start renderer")

		if err := t.MarkFailed(s.now(), launchErr); err != nil {
			logger.Error().Err(err).Msg("Failed to mark task failed")
		}
		return Result{Launched: false, ExitCode: -1}, s.saveTerminal(ctx, logger, t)
	}

	waitErr := cmd.Wait()
	result := Result{
		Launched: true,
		ExitCode: exitCode(cmd, waitErr),
		Duration: s.now().Sub(started),
	}

	stopWatch()

	frames := loadFrames(framesDir, logger)
	t.ReplaceFrames(frames)
	result.Frames = len(frames)

	logger.Info().
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Int("frames", result.Frames).
		Msg("Renderer finished")

	if result.ExitCode != 0 {
		description := describeExit(result.ExitCode, waitErr)
		logger.Warn().Str("reason", description).Msg("Renderer exited abnormally")
		t.RecordError(description)
	}

	if err := t.MarkFinished(s.now()); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task finished")
	}

	outputFile := in.OutputFile()
	output, err := os.ReadFile(outputFile)
	if err != nil {
		logger.Error().Err(err).Str("file", outputFile).Msg("Failed to read renderer output")
	} else {
		t.AppendOutput(output)
	}

	return result, s.saveTerminal(ctx, logger, t)
}

// recordFrames runs on the watcher goroutine while the renderer is alive
func (s *Supervisor) recordFrames(ctx context.Context, logger zerolog.Logger, t *task.Task, dir string, count int, expected float64) {
	advanced := t.AdvanceProgress(float64(count) / expected)
	replaced := t.ReplaceFrames(loadFrames(dir, logger))
	if !advanced && !replaced {
		return
	}

	logger.Info().
		Int("frames", count).
		Float64("progress", t.Progress).
		Msg("Saving intermediate frames")

	err := s.store.Save(ctx, t)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save task progress")
	}
	s.onProgress(t.Progress, err)
}

func (s *Supervisor) saveTerminal(ctx context.Context, logger zerolog.Logger, t *task.Task) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.saveBackoff

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.store.Save(ctx, t)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Failed to save task result")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.saveAttempts-1)), ctx))
	if err != nil {
		logger.Error().Err(err).Str("state", string(t.State)).Msg("Giving up on saving task result")
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}

	logger.Info().Str("state", string(t.State)).Msg("Saved task result")
	return nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func describeExit(code int, err error) string {
	if code < 0 {
		if err != nil {
			return fmt.Sprintf("renderer terminated: %v", err)
		}
		return "renderer terminated by a signal"
	}
	return fmt.Sprintf("renderer exited with code %d", code)
}
