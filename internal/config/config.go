package config

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPeriodicDelay is the queue polling interval in milliseconds
	DefaultPeriodicDelay = 1000

	// DefaultConfigFile is read when no --config flag is given
	DefaultConfigFile = "./monet-agent-configuration.json"
)

// Config represents the resolved agent configuration
type Config struct {
	// Queue polling. The delay is in milliseconds but polling runs on whole
	// seconds, so it is rounded with a one second minimum.
	Periodic      bool `json:"periodic" mapstructure:"periodic"`
	PeriodicDelay int  `json:"periodicDelay" mapstructure:"periodicDelay" validate:"gt=0"`

	// Databases
	Databases DatabasesConfig `json:"databases" mapstructure:"databases"`

	// External programs
	Programs ProgramsConfig `json:"programs" mapstructure:"programs"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// DatabasesConfig holds one connection descriptor per logical store
type DatabasesConfig struct {
	Service *ServiceDatabaseConfig `json:"service,omitempty" mapstructure:"service" validate:"omitempty"`
	Queue   QueueDatabaseConfig    `json:"queue" mapstructure:"queue"`
	Task    TaskDatabaseConfig     `json:"task" mapstructure:"task"`
}

// ServiceDatabaseConfig describes the etcd service registry
type ServiceDatabaseConfig struct {
	Hosts      []string   `json:"hosts" mapstructure:"hosts" validate:"min=1,dive,required"`
	SSLOptions SSLOptions `json:"sslOptions" mapstructure:"sslOptions"`
}

// SSLOptions holds TLS file paths for the service registry
type SSLOptions struct {
	CA   string `json:"ca,omitempty" mapstructure:"ca"`
	Cert string `json:"cert,omitempty" mapstructure:"cert"`
	Key  string `json:"key,omitempty" mapstructure:"key" validate:"required_with=Cert"`
}

// QueueDatabaseConfig describes the Redis queue database
type QueueDatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port" validate:"omitempty,numeric"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	DB       int    `json:"db,omitempty" mapstructure:"db" validate:"gte=0"`
}

// TaskDatabaseConfig describes the task document store
type TaskDatabaseConfig struct {
	URL     string              `json:"url" mapstructure:"url" validate:"required"`
	Options TaskDatabaseOptions `json:"options" mapstructure:"options"`
}

// TaskDatabaseOptions are the driver options the agent understands
type TaskDatabaseOptions struct {
	AppName          string `json:"appName,omitempty" mapstructure:"appName"`
	MaxPoolSize      uint64 `json:"maxPoolSize,omitempty" mapstructure:"maxPoolSize"`
	ConnectTimeoutMS int    `json:"connectTimeoutMS,omitempty" mapstructure:"connectTimeoutMS" validate:"gte=0"`
}

// ProgramsConfig holds external program invocation templates
type ProgramsConfig struct {
	NeuralDoodle ProgramConfig `json:"neural-doodle" mapstructure:"neural-doodle"`
}

// ProgramConfig describes how to invoke an external renderer
type ProgramConfig struct {
	Command          string   `json:"command" mapstructure:"command" validate:"required"`
	Script           string   `json:"script" mapstructure:"script"`
	Arguments        []string `json:"arguments" mapstructure:"arguments"`
	WorkingDirectory string   `json:"workingDirectory" mapstructure:"workingDirectory" validate:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Address string `json:"address,omitempty" mapstructure:"address" validate:"omitempty,hostname_port"`
}

// DefaultQueueDatabase returns the built-in queue database descriptor
func DefaultQueueDatabase() QueueDatabaseConfig {
	return QueueDatabaseConfig{
		Host: "monet-queue-db",
		Port: "6379",
	}
}

// DefaultTaskDatabase returns the built-in task database descriptor
func DefaultTaskDatabase() TaskDatabaseConfig {
	return TaskDatabaseConfig{
		URL: "mongodb://monet-task-db:27017/monet",
	}
}

// DefaultNeuralDoodle returns the built-in renderer invocation
func DefaultNeuralDoodle() ProgramConfig {
	return ProgramConfig{
		Command:          "python3",
		Script:           "/neural-doodle/doodle.py",
		Arguments:        []string{},
		WorkingDirectory: "/data",
	}
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Periodic:      true,
		PeriodicDelay: DefaultPeriodicDelay,
		Databases: DatabasesConfig{
			Queue: DefaultQueueDatabase(),
			Task:  DefaultTaskDatabase(),
		},
		Programs: ProgramsConfig{
			NeuralDoodle: DefaultNeuralDoodle(),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    false,
			Redaction: true,
		},
	}
}

// PeriodicInterval returns the polling delay as a duration
func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.PeriodicDelay) * time.Millisecond
}

// Addr returns the host:port address of the queue database
func (q QueueDatabaseConfig) Addr() string {
	host := q.Host
	if host == "" {
		host = "localhost"
	}
	port := q.Port
	if port == "" {
		port = "6379"
	}
	return net.JoinHostPort(host, port)
}

// ConnectTimeout returns the connect timeout option as a duration
func (o TaskDatabaseOptions) ConnectTimeout() time.Duration {
	return time.Duration(o.ConnectTimeoutMS) * time.Millisecond
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid. Configurations returned by
// Loader always pass.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
