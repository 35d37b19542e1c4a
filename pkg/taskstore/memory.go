package taskstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/monet/pkg/task"
)

// MemoryStore keeps tasks in process memory
type MemoryStore struct {
	tasks map[string]*task.Task
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*task.Task),
	}
}

// Get returns a copy of the stored task
func (m *MemoryStore) Get(ctx context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// Save stores a copy of the task. Inputs, arguments and the queued timestamp
// of an existing record are kept, matching the document store's upsert.
func (m *MemoryStore) Save(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := t.Clone()
	if existing, ok := m.tasks[t.ID]; ok {
		c.Inputs = existing.Inputs
		c.Arguments = existing.Arguments
		c.Queued = existing.Queued
	}
	m.tasks[t.ID] = c
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
