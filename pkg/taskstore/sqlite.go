package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/monet/pkg/task"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	inputs TEXT NOT NULL DEFAULT '[]',
	outputs TEXT NOT NULL DEFAULT '[]',
	arguments TEXT NOT NULL DEFAULT '[]',
	state TEXT NOT NULL DEFAULT 'queued',
	progress REAL NOT NULL DEFAULT 0,
	process_errors TEXT NOT NULL DEFAULT '[]',
	queued TEXT NOT NULL,
	started TEXT,
	finished TEXT
);`

// SQLiteStore persists tasks in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite task database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get loads a task by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, inputs, outputs, arguments, state, progress, process_errors, queued, started, finished
		FROM tasks WHERE id = ?`, id)

	var (
		t                                 task.Task
		inputs, outputs, args, procErrors string
		state, queued                     string
		started, finished                 sql.NullString
	)
	err := row.Scan(&t.ID, &inputs, &outputs, &args, &state, &t.Progress, &procErrors, &queued, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}

	t.State = task.State(state)
	if err := decodeColumns(
		jsonColumn{inputs, &t.Inputs},
		jsonColumn{outputs, &t.Outputs},
		jsonColumn{args, &t.Arguments},
		jsonColumn{procErrors, &t.ProcessErrors},
	); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", id, err)
	}

	if t.Queued, err = time.Parse(time.RFC3339Nano, queued); err != nil {
		return nil, fmt.Errorf("failed to decode task %s queued time: %w", id, err)
	}
	if t.Started, err = parseNullTime(started); err != nil {
		return nil, fmt.Errorf("failed to decode task %s started time: %w", id, err)
	}
	if t.Finished, err = parseNullTime(finished); err != nil {
		return nil, fmt.Errorf("failed to decode task %s finished time: %w", id, err)
	}

	return &t, nil
}

// Save inserts the task or updates the fields the agent owns
func (s *SQLiteStore) Save(ctx context.Context, t *task.Task) error {
	inputs, err := json.Marshal(nonNilBlobs(t.Inputs))
	if err != nil {
		return err
	}
	outputs, err := json.Marshal(nonNilBlobs(t.Outputs))
	if err != nil {
		return err
	}
	args, err := json.Marshal(nonNilStrings(t.Arguments))
	if err != nil {
		return err
	}
	procErrors, err := json.Marshal(nonNilStrings(t.ProcessErrors))
	if err != nil {
		return err
	}

	queued := t.Queued
	if queued.IsZero() {
		queued = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, inputs, outputs, arguments, state, progress, process_errors, queued, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outputs = excluded.outputs,
			state = excluded.state,
			progress = excluded.progress,
			process_errors = excluded.process_errors,
			started = excluded.started,
			finished = excluded.finished`,
		t.ID, string(inputs), string(outputs), string(args), string(t.State), t.Progress,
		string(procErrors), queued.UTC().Format(time.RFC3339Nano), formatNullTime(t.Started), formatNullTime(t.Finished),
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type jsonColumn struct {
	raw string
	dst any
}

func decodeColumns(columns ...jsonColumn) error {
	for _, c := range columns {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return err
		}
	}
	return nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNilBlobs(b [][]byte) [][]byte {
	if b == nil {
		return [][]byte{}
	}
	return b
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
