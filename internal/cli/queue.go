package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/monet/internal/config"
	"github.com/harun/monet/pkg/queue"
)

func newQueueClient(cfg *config.Config, agentID string) *queue.Client {
	qdb := cfg.Databases.Queue
	return queue.NewClient(queue.Config{
		Addr:     qdb.Addr(),
		Password: qdb.Password,
		DB:       qdb.DB,
		AgentID:  agentID,
		Logger:   zerolog.Nop(),
	})
}

func newEnqueueCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <task-id>...",
		Short: "Queue task IDs and notify idle agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig(cmd)

			client := newQueueClient(cfg, "cli")
			defer client.Close()

			if err := client.Enqueue(cmd.Context(), args...); err != nil {
				return err
			}

			for _, id := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
			}
			return nil
		},
	}
}

func newRecoverCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <agent-id>",
		Short: "Return the tasks leased by a dead agent to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig(cmd)

			client := newQueueClient(cfg, "cli")
			defer client.Close()

			ids, err := client.Recover(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no tasks leased by %s\n", args[0])
				return nil
			}
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "recovered %s\n", id)
			}
			return nil
		},
	}
}

func newInFlightCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inflight <agent-id>",
		Short: "List the tasks an agent has leased",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.loadConfig(cmd)

			client := newQueueClient(cfg, args[0])
			defer client.Close()

			ids, err := client.InFlight(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
