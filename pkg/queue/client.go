package queue

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// PendingKey is the shared list of queued task IDs
	PendingKey = "queue:tasks"

	// TaskQueuedChannel carries the ID of every newly queued task
	TaskQueuedChannel = "queue:taskQueued"
)

// InFlightKey returns the private in-flight list key of an agent
func InFlightKey(agentID string) string {
	return "queue:" + agentID
}

// Config holds queue client configuration
type Config struct {
	Addr     string
	Password string
	DB       int
	AgentID  string
	Logger   zerolog.Logger
}

// Client talks to the queue database on behalf of one agent
type Client struct {
	rdb         *redis.Client
	agentID     string
	inFlightKey string
	logger      zerolog.Logger
}

// NewClient creates a queue client. The connection is established lazily
// and re-established by the driver after failures.
func NewClient(cfg Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger := cfg.Logger.With().Str("database", "queueDatabase").Logger()
	rdb.AddHook(&connectionLogger{logger: logger})

	return &Client{
		rdb:         rdb,
		agentID:     cfg.AgentID,
		inFlightKey: InFlightKey(cfg.AgentID),
		logger:      logger,
	}
}

// Ping checks that the queue database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying connections
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AgentID returns the agent this client leases for
func (c *Client) AgentID() string {
	return c.agentID
}

// Lease moves one ID from the pending list to the private list. It returns
// false when nothing is pending.
func (c *Client) Lease(ctx context.Context) (string, bool, error) {
	id, err := c.rdb.RPopLPush(ctx, PendingKey, c.inFlightKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to lease from %s: %w", PendingKey, err)
	}
	return id, true, nil
}

// Acknowledge removes every occurrence of id from the private list
func (c *Client) Acknowledge(ctx context.Context, id string) error {
	if err := c.rdb.LRem(ctx, c.inFlightKey, 0, id).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", id, c.inFlightKey, err)
	}
	return nil
}

// ReturnToQueue pops the most recent lease off the private list and pushes it
// to the tail of the pending list. If the pop fails the ID is only removed
// from the private list.
func (c *Client) ReturnToQueue(ctx context.Context, id string) error {
	popped, err := c.rdb.LPop(ctx, c.inFlightKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("task_id", id).
			Str("list", c.inFlightKey).
			Msg("Failed to pop task from the agent list, removing it instead")
		return c.Acknowledge(ctx, id)
	}

	if err := c.rdb.RPush(ctx, PendingKey, popped).Err(); err != nil {
		return fmt.Errorf("failed to put %s back to %s: %w", popped, PendingKey, err)
	}
	return nil
}

// InFlight lists the IDs currently leased by this agent
func (c *Client) InFlight(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.LRange(ctx, c.inFlightKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.inFlightKey, err)
	}
	return ids, nil
}

// Enqueue appends ids to the pending list and announces each one
func (c *Client) Enqueue(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := c.rdb.RPush(ctx, PendingKey, id).Err(); err != nil {
			return fmt.Errorf("failed to queue %s: %w", id, err)
		}
		if err := c.Publish(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Publish announces a queued task on the notification channel
func (c *Client) Publish(ctx context.Context, id string) error {
	if err := c.rdb.Publish(ctx, TaskQueuedChannel, id).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", id, err)
	}
	return nil
}

// Recover moves every ID left in another agent's private list back to the
// pending list and returns the IDs it moved
func (c *Client) Recover(ctx context.Context, agentID string) ([]string, error) {
	source := InFlightKey(agentID)

	var moved []string
	for {
		id, err := c.rdb.RPopLPush(ctx, source, PendingKey).Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover from %s: %w", source, err)
		}
		moved = append(moved, id)
	}
}

// connectionLogger logs dial outcomes so connectivity changes are visible
type connectionLogger struct {
	logger zerolog.Logger
}

func (h *connectionLogger) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Error().Err(err).Str("addr", addr).Msg("Failed to connect to the queue database")
			return nil, err
		}
		h.logger.Debug().Str("addr", addr).Msg("Connected to the queue database")
		return conn, nil
	}
}

func (h *connectionLogger) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *connectionLogger) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}
