// Package discovery reads downstream connection descriptors from the shared
// etcd service registry.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// QueueDatabaseKey holds the queue database descriptor
	QueueDatabaseKey = "services/queueDatabase"
	// TaskDatabaseKey holds the task database descriptor
	TaskDatabaseKey = "services/taskDatabase"

	defaultDialTimeout    = 5 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// Registry is a read-only view of the service registry
type Registry interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Close() error
}

// Config holds etcd connection settings
type Config struct {
	Endpoints []string
	CAFile    string
	CertFile  string
	KeyFile   string
	Logger    zerolog.Logger
}

// EtcdRegistry reads service descriptors from etcd
type EtcdRegistry struct {
	client *clientv3.Client
	logger zerolog.Logger
}

// NewEtcdRegistry creates an etcd-backed registry
func NewEtcdRegistry(cfg Config) (*EtcdRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no service database hosts configured")
	}

	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: defaultDialTimeout,
	}

	if cfg.CertFile != "" || cfg.CAFile != "" {
		tlsInfo := transport.TLSInfo{
			CertFile:      cfg.CertFile,
			KeyFile:       cfg.KeyFile,
			TrustedCAFile: cfg.CAFile,
		}
		tlsConfig, err := tlsInfo.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load service database TLS files: %w", err)
		}
		etcdCfg.TLS = tlsConfig
	}

	client, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service database client: %w", err)
	}

	return &EtcdRegistry{
		client: client,
		logger: cfg.Logger.With().Str("database", "serviceDatabase").Logger(),
	}, nil
}

// Get returns the value stored under key. The boolean is false when the key does not exist.
func (r *EtcdRegistry) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}

	r.logger.Debug().Str("key", key).Int64("revision", resp.Header.Revision).Msg("Service descriptor found")
	return string(resp.Kvs[0].Value), true, nil
}

// Close closes the etcd client
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
