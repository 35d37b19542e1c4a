package taskstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/monet/pkg/task"
	"github.com/rs/zerolog"
)

// Config describes how to reach a task store
type Config struct {
	URL            string
	AppName        string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Open connects to the store named by cfg.URL
func Open(ctx context.Context, cfg Config) (task.Store, error) {
	scheme, rest, ok := strings.Cut(cfg.URL, "://")
	if !ok {
		return nil, fmt.Errorf("invalid task database url %q: missing scheme", cfg.URL)
	}

	switch scheme {
	case "mongodb", "mongodb+srv":
		return NewMongoStore(ctx, cfg)
	case "sqlite":
		return NewSQLiteStore(rest)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported task database scheme %q", scheme)
	}
}
