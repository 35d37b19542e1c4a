package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Periodic)
	assert.Equal(t, 1000, cfg.PeriodicDelay)
	assert.Equal(t, time.Second, cfg.PeriodicInterval())
	assert.Nil(t, cfg.Databases.Service)
	assert.Equal(t, "monet-queue-db:6379", cfg.Databases.Queue.Addr())
	assert.Equal(t, "mongodb://monet-task-db:27017/monet", cfg.Databases.Task.URL)
	assert.Equal(t, "python3", cfg.Programs.NeuralDoodle.Command)
	assert.Equal(t, "/neural-doodle/doodle.py", cfg.Programs.NeuralDoodle.Script)
	assert.Equal(t, []string{}, cfg.Programs.NeuralDoodle.Arguments)
	assert.Equal(t, "/data", cfg.Programs.NeuralDoodle.WorkingDirectory)

	require.NoError(t, cfg.Validate())
}

func TestQueueAddr(t *testing.T) {
	tests := []struct {
		name string
		db   QueueDatabaseConfig
		want string
	}{
		{"host and port", QueueDatabaseConfig{Host: "redis", Port: "6380"}, "redis:6380"},
		{"missing port", QueueDatabaseConfig{Host: "redis"}, "redis:6379"},
		{"missing host", QueueDatabaseConfig{Port: "7000"}, "localhost:7000"},
		{"ipv6 host", QueueDatabaseConfig{Host: "::1", Port: "6379"}, "[::1]:6379"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.db.Addr())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("zero periodic delay", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PeriodicDelay = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("non numeric queue port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Databases.Queue.Port = "redis"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing task url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Databases.Task.URL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing renderer command", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Programs.NeuralDoodle.Command = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("service registry without hosts", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Databases.Service = &ServiceDatabaseConfig{}
		assert.Error(t, cfg.Validate())
	})

	t.Run("service registry with hosts", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Databases.Service = &ServiceDatabaseConfig{Hosts: []string{"etcd:2379"}}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad metrics address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Metrics.Address = "not an address"
		assert.Error(t, cfg.Validate())
	})
}

func TestDecodeDescriptor(t *testing.T) {
	t.Run("numeric port", func(t *testing.T) {
		var q QueueDatabaseConfig
		require.NoError(t, DecodeDescriptor(`{"host":"redis","port":6380}`, &q))
		assert.Equal(t, "redis", q.Host)
		assert.Equal(t, "6380", q.Port)
	})

	t.Run("service hosts", func(t *testing.T) {
		var s ServiceDatabaseConfig
		require.NoError(t, DecodeDescriptor(`{"hosts":["etcd-1:2379","etcd-2:2379"],"sslOptions":{"ca":"/ca.pem"}}`, &s))
		assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, s.Hosts)
		assert.Equal(t, "/ca.pem", s.SSLOptions.CA)
	})

	t.Run("invalid json", func(t *testing.T) {
		var q QueueDatabaseConfig
		assert.Error(t, DecodeDescriptor(`{host:`, &q))
	})

	t.Run("non numeric port", func(t *testing.T) {
		var q QueueDatabaseConfig
		assert.Error(t, DecodeDescriptor(`{"port":"redis"}`, &q))
	})

	t.Run("registry without hosts", func(t *testing.T) {
		var s ServiceDatabaseConfig
		assert.Error(t, DecodeDescriptor(`{}`, &s))
	})

	t.Run("task database without url", func(t *testing.T) {
		var d TaskDatabaseConfig
		assert.Error(t, DecodeDescriptor(`{"options":{"appName":"agent"}}`, &d))
	})

	t.Run("null", func(t *testing.T) {
		var q QueueDatabaseConfig
		assert.ErrorIs(t, DecodeDescriptor(`null`, &q), ErrEmptyDescriptor)
	})
}
