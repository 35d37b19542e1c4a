package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Loader resolves the agent configuration from defaults, files and the
// environment. Problems with any source are logged and that source is
// skipped; Load never fails.
type Loader struct {
	files  []string
	logger zerolog.Logger
	env    *environment
}

// NewLoader creates a new config loader. With no files the default
// configuration file is used.
func NewLoader(logger zerolog.Logger, files ...string) *Loader {
	if len(files) == 0 {
		files = []string{DefaultConfigFile}
	}
	return &Loader{
		files:  files,
		logger: logger,
		env:    newEnvironment(),
	}
}

// Files returns the configuration files in priority order
func (l *Loader) Files() []string {
	return l.files
}

// Load resolves the configuration
func (l *Loader) Load() *Config {
	l.logger.Info().Strs("files", l.files).Msg("Loading configuration")

	merged := viper.New()
	for _, file := range l.files {
		settings, ok := l.readFile(file)
		if !ok {
			continue
		}
		// Later files replace whole top-level keys of earlier ones
		for key, value := range settings {
			merged.Set(key, value)
		}
	}

	cfg := DefaultConfig()
	cfg.Databases = DatabasesConfig{}
	if err := merged.Unmarshal(cfg); err != nil {
		l.logger.Error().Err(err).Msg("Failed to decode configuration, using defaults")
		cfg = DefaultConfig()
		cfg.Databases = DatabasesConfig{}
	}

	l.applyEnvironment(cfg)
	l.applyDefaults(cfg)
	l.checkDescriptors(cfg)

	if cfg.PeriodicDelay%1000 != 0 {
		l.logger.Warn().
			Int("periodic_delay", cfg.PeriodicDelay).
			Msg("Polling runs on whole seconds, the delay will be rounded")
	}

	return cfg
}

// readFile parses one configuration file and drops the top-level keys that
// violate the schema
func (l *Loader) readFile(file string) (map[string]any, bool) {
	logger := l.logger.With().Str("file", file).Logger()

	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read the configuration file")
		return nil, false
	}

	violations, err := checkSchema(data)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to parse the configuration file")
		return nil, false
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		logger.Error().Err(err).Msg("Failed to parse the configuration file")
		return nil, false
	}
	settings := v.AllSettings()

	for _, violation := range violations {
		if violation.Key == rootField {
			logger.Error().Str("reason", violation.Description).Msg("Ignoring the configuration file")
			return nil, false
		}
		logger.Warn().
			Str("field", violation.Field).
			Str("reason", violation.Description).
			Msg("Ignoring invalid configuration value")
		delete(settings, lowerKey(violation.Key))
	}

	return settings, true
}

// applyEnvironment replaces descriptors with MONET_* overrides
func (l *Loader) applyEnvironment(cfg *Config) {
	var service ServiceDatabaseConfig
	if l.decodeEnv(EnvDiscoveryDatabase, &service) {
		cfg.Databases.Service = &service
	}

	var queue QueueDatabaseConfig
	if l.decodeEnv(EnvQueueDatabase, &queue) {
		cfg.Databases.Queue = queue
	}

	var taskDB TaskDatabaseConfig
	if l.decodeEnv(EnvTaskDatabase, &taskDB) {
		cfg.Databases.Task = taskDB
	}
}

func (l *Loader) decodeEnv(key string, dst any) bool {
	name := fmt.Sprintf("%s_%s", envPrefix, key)
	raw, ok := l.env.lookup(key)
	if !ok {
		return false
	}

	l.logger.Info().Str("variable", name).Msg("Extracting environment configuration")

	if err := DecodeDescriptor(raw, dst); err != nil {
		l.logger.Error().
			Err(err).
			Str("variable", name).
			Str("value", raw).
			Msg("Failed to parse environment configuration")
		return false
	}
	return true
}

// applyDefaults fills in whatever no source provided
func (l *Loader) applyDefaults(cfg *Config) {
	if cfg.PeriodicDelay <= 0 {
		cfg.PeriodicDelay = DefaultPeriodicDelay
	}

	if cfg.Databases.Queue == (QueueDatabaseConfig{}) {
		cfg.Databases.Queue = DefaultQueueDatabase()
	}
	if cfg.Databases.Task.URL == "" {
		cfg.Databases.Task = DefaultTaskDatabase()
	}

	program := &cfg.Programs.NeuralDoodle
	defaults := DefaultNeuralDoodle()
	if program.Command == "" {
		program.Command = defaults.Command
	}
	if program.Script == "" {
		program.Script = defaults.Script
	}
	if program.Arguments == nil {
		program.Arguments = defaults.Arguments
	}
	if program.WorkingDirectory == "" {
		program.WorkingDirectory = defaults.WorkingDirectory
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// checkDescriptors replaces settings that cannot be used with their
// fallbacks. An unusable service database disables discovery.
func (l *Loader) checkDescriptors(cfg *Config) {
	if service := cfg.Databases.Service; service != nil {
		if err := validate.Struct(service); err != nil {
			l.logger.Warn().Err(err).Msg("Ignoring invalid service database, discovery disabled")
			cfg.Databases.Service = nil
		}
	}

	if err := validate.Struct(cfg.Databases.Queue); err != nil {
		l.logger.Warn().Err(err).Msg("Ignoring invalid queue database, using default")
		cfg.Databases.Queue = DefaultQueueDatabase()
	}

	if err := validate.Struct(cfg.Databases.Task); err != nil {
		l.logger.Warn().Err(err).Msg("Ignoring invalid task database, using default")
		cfg.Databases.Task = DefaultTaskDatabase()
	}

	if err := validate.Struct(cfg.Logging); err != nil {
		l.logger.Warn().Err(err).Msg("Ignoring invalid log level")
		cfg.Logging.Level = "info"
	}

	if err := validate.Struct(cfg.Metrics); err != nil {
		l.logger.Warn().Err(err).Msg("Ignoring invalid metrics address, metrics disabled")
		cfg.Metrics.Address = ""
	}
}

func lowerKey(key string) string {
	return strings.ToLower(key)
}

// Load is a convenience function that creates a loader and loads the config
func Load(logger zerolog.Logger, files ...string) *Config {
	return NewLoader(logger, files...).Load()
}
