package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/monet/internal/agent"
	"github.com/harun/monet/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		Long: `Run connects to the queue and task databases, then processes one task
at a time until SIGINT or SIGTERM. A task in flight is finished before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := agent.New(cfg, log)

			if err := tracing.InitOpenTelemetry("monet-agent", a.ID()); err != nil {
				log.Warn().Err(err).Msg("Failed to initialize tracing")
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
			}()

			if err := a.Bootstrap(ctx); err != nil {
				return err
			}

			runErr := a.Run(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("Failed to close connections")
			}
			return runErr
		},
	}
}
