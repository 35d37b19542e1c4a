package queue

import (
	"context"
	"fmt"
)

// Subscribe listens on the task-queued channel and calls onMessage once per
// event until ctx is done. It returns an error only when the initial
// subscription cannot be confirmed.
func (c *Client) Subscribe(ctx context.Context, onMessage func(taskID string)) error {
	pubsub := c.rdb.Subscribe(ctx, TaskQueuedChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TaskQueuedChannel, err)
	}

	c.logger.Info().Str("channel", TaskQueuedChannel).Msg("Subscribed to task notifications")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			onMessage(msg.Payload)
		}
	}
}
