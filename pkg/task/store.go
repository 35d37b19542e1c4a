package task

import "context"

// Store persists task records. Save is an upsert of the fields the agent owns.
type Store interface {
	Get(ctx context.Context, id string) (*Task, error)
	Save(ctx context.Context, t *Task) error
	Close(ctx context.Context) error
}
