package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/harun/monet/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, task.ErrNotFound)

	original := &task.Task{
		ID:        "t1",
		Inputs:    [][]byte{{1}, {2}, {3}},
		Arguments: []string{"--iterations=40"},
		State:     task.StateQueued,
		Queued:    time.Now(),
	}
	require.NoError(t, store.Save(ctx, original))

	loaded, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, original.Inputs, loaded.Inputs)

	loaded.Outputs = append(loaded.Outputs, []byte("frame"))
	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, again.Outputs, "returned tasks are copies")
}

func TestMemoryStoreKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, &task.Task{
		ID:     "t1",
		Inputs: [][]byte{{1}, {2}, {3}},
		State:  task.StateQueued,
	}))

	require.NoError(t, store.Save(ctx, &task.Task{ID: "t1", State: task.StateStarted}))

	loaded, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StateStarted, loaded.State)
	assert.Len(t, loaded.Inputs, 3)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := Open(ctx, Config{URL: "memory://"})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := Open(ctx, Config{URL: "sqlite://" + t.TempDir() + "/tasks.db"})
		require.NoError(t, err)
		defer store.Close(ctx)
		assert.IsType(t, &SQLiteStore{}, store)
	})

	t.Run("missing scheme", func(t *testing.T) {
		_, err := Open(ctx, Config{URL: "monet-task-db:27017"})
		assert.Error(t, err)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := Open(ctx, Config{URL: "postgres://localhost/monet"})
		assert.ErrorContains(t, err, "unsupported")
	})
}
