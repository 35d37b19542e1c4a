package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/monet/internal/config"
	"github.com/harun/monet/internal/logger"
)

const version = "0.1.0"

// globalOptions are the flags shared by every command
type globalOptions struct {
	configFiles []string
	logLevel    string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "monet-agent",
		Short: "monet-agent - image stylization worker",
		Long: `monet-agent leases stylization tasks from the queue database, renders
them with neural-doodle and records progress and frames in the task database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringArrayVar(&opts.configFiles, "config", nil,
		fmt.Sprintf("configuration file, repeatable, later files win (default %s)", config.DefaultConfigFile))
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newEnqueueCmd(opts),
		newRecoverCmd(opts),
		newInFlightCmd(opts),
		newConfigCmd(opts),
	)

	return rootCmd
}

// Execute runs the command tree. It is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig resolves the configuration. Resolution problems are logged to
// the bootstrap logger, which writes to the command's error stream.
func (o *globalOptions) loadConfig(cmd *cobra.Command) *config.Config {
	bootstrap := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Str("component", "config").Logger()
	if o.logLevel != "" {
		if level, err := zerolog.ParseLevel(o.logLevel); err == nil {
			bootstrap = bootstrap.Level(level)
		}
	}

	cfg := config.Load(bootstrap, o.configFiles...)
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg
}

// newLogger creates the process logger from the logging configuration
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	logCfg.Console = cfg.Logging.Console
	logCfg.Pretty = cfg.Logging.Pretty
	logCfg.Redaction = cfg.Logging.Redaction
	logCfg.Output = cmd.ErrOrStderr()
	return logger.New(logCfg)
}
