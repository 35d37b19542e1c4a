// Package queue implements the reliable lease protocol over a Redis list and
// the task-queued notification channel.
//
// Invariants:
// - Lease atomically moves one ID from the shared pending list to the agent's
//   private in-flight list, so an ID is held by at most one agent at a time.
// - Acknowledge removes every occurrence of an ID from the private list.
// - ReturnToQueue never duplicates an ID: when it cannot pop, it only removes.
//
// Usage:
//
//	c := queue.NewClient(queue.Config{Addr: "monet-queue-db:6379", AgentID: id, Logger: logger})
//	defer c.Close()
//	id, ok, err := c.Lease(ctx)
//	if ok {
//		_ = c.Acknowledge(ctx, id)
//	}
package queue
