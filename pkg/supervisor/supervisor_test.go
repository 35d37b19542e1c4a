package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/monet/pkg/task"
)

// stubRenderer writes four frames with pauses, then the output image, and
// exits with the code given by --exit-code
const stubRenderer = `#!/bin/sh
out=""
code=0
for arg in "$@"; do
  case "$arg" in
    --output=*) out="${arg#--output=}" ;;
    --exit-code=*) code="${arg#--exit-code=}" ;;
  esac
done
i=1
while [ $i -le 4 ]; do
  printf 'frame-%d' $i > frames/frame-$i.png
  sleep 0.2
  i=$((i+1))
done
printf 'final' > "$out"
exit $code
`

// recordingStore keeps a copy of every saved task
type recordingStore struct {
	mu     sync.Mutex
	saves  []*task.Task
	failAt map[int]error
}

func (r *recordingStore) Get(ctx context.Context, id string) (*task.Task, error) {
	return nil, task.ErrNotFound
}

func (r *recordingStore) Save(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := len(r.saves)
	r.saves = append(r.saves, t.Clone())
	if err, ok := r.failAt[call]; ok {
		return err
	}
	return nil
}

func (r *recordingStore) Close(ctx context.Context) error {
	return nil
}

func (r *recordingStore) snapshot() []*task.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*task.Task(nil), r.saves...)
}

func setupRenderer(t *testing.T, extraArgs ...string) (Program, Inputs) {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "doodle.sh")
	require.NoError(t, os.WriteFile(script, []byte(stubRenderer), 0o755))

	style := filepath.Join(dir, "style.png")
	target := filepath.Join(dir, "target_sem.png")
	require.NoError(t, os.WriteFile(style, []byte("style"), 0o644))
	require.NoError(t, os.WriteFile(style[:len(style)-4]+"_sem.png", []byte("style-sem"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("target-sem"), 0o644))

	program := Program{
		Command:          "sh",
		Script:           script,
		Arguments:        extraArgs,
		WorkingDirectory: dir,
	}
	return program, Inputs{StyleFile: style, TargetSemanticMap: target}
}

func startedTask(t *testing.T, args ...string) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:        "task-1",
		Inputs:    [][]byte{[]byte("a"), []byte("b"), []byte("c")},
		Arguments: args,
		State:     task.StateQueued,
		Queued:    time.Now(),
	}
	require.NoError(t, tk.MarkStarted(time.Now()))
	return tk
}

func TestOutputFile(t *testing.T) {
	in := Inputs{TargetSemanticMap: "/data/0b7d_sem.png"}
	assert.Equal(t, "/data/0b7d.png", in.OutputFile())
}

func TestCmd(t *testing.T) {
	program := Program{
		Command:          "python3",
		Script:           "/neural-doodle/doodle.py",
		Arguments:        []string{"--device=cpu"},
		WorkingDirectory: "/data",
	}
	tk := &task.Task{Arguments: []string{"--iterations=40"}}
	in := Inputs{StyleFile: "/data/a.png", TargetSemanticMap: "/data/b_sem.png"}

	cmd := program.Cmd(tk, in)

	assert.Equal(t, "/data", cmd.Dir)
	assert.Equal(t, []string{
		"python3",
		"/neural-doodle/doodle.py",
		"--device=cpu",
		"--iterations=40",
		"--phases=3",
		"--style=/data/a.png",
		"--output=/data/b.png",
	}, cmd.Args)
	assert.Equal(t, "/data/frames", program.FramesDirectory())
}

func TestExpectedFramesTaskArgumentsWin(t *testing.T) {
	program := Program{Arguments: []string{"--iterations=90", "--save-every=10"}}
	tk := &task.Task{Arguments: []string{"--iterations=20"}}
	assert.Equal(t, 6.0, program.ExpectedFrames(tk))
}

func TestPrepareFrames(t *testing.T) {
	t.Run("creates a missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "frames")
		require.NoError(t, prepareFrames(dir))
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("removes stale frames but keeps directories", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), []byte("x"), 0o644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

		require.NoError(t, prepareFrames(dir))

		count, err := countFrames(dir)
		require.NoError(t, err)
		assert.Zero(t, count)
		_, err = os.Stat(filepath.Join(dir, "nested"))
		assert.NoError(t, err)
	})
}

func TestLoadFrames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("second"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.png"), nil, 0o644))

	frames := loadFrames(dir, zerolog.Nop())
	assert.Equal(t, [][]byte{[]byte("first"), []byte("second")}, frames)

	count, err := countFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunFinished(t *testing.T) {
	program, in := setupRenderer(t)
	// 4 / 3 * 3 phases = 4 expected frames
	tk := startedTask(t, "--iterations=4", "--save-every=3")

	// A stale frame from an earlier run must not count
	require.NoError(t, os.MkdirAll(program.FramesDirectory(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(program.FramesDirectory(), "stale.png"), []byte("old"), 0o644))

	store := &recordingStore{}
	var progressCalls int
	s := New(Config{
		Program:     program,
		Store:       store,
		Logger:      zerolog.Nop(),
		SaveBackoff: time.Millisecond,
		OnProgress:  func(float64, error) { progressCalls++ },
	})

	result, err := s.Run(context.Background(), tk, in)
	require.NoError(t, err)

	assert.True(t, result.Launched)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, 4, result.Frames)

	assert.Equal(t, task.StateFinished, tk.State)
	assert.Equal(t, 1.0, tk.Progress)
	require.NotNil(t, tk.Finished)
	assert.Empty(t, tk.ProcessErrors)
	require.Len(t, tk.Outputs, 5)
	assert.Equal(t, []byte("frame-1"), tk.Outputs[0])
	assert.Equal(t, []byte("final"), tk.Outputs[4])

	saves := store.snapshot()
	require.NotEmpty(t, saves)
	assert.Equal(t, len(saves)-1, progressCalls)

	previous := 0.0
	for _, saved := range saves[:len(saves)-1] {
		assert.Equal(t, task.StateStarted, saved.State)
		assert.LessOrEqual(t, saved.Progress, task.MaxIntermediateProgress)
		assert.GreaterOrEqual(t, saved.Progress, previous)
		previous = saved.Progress
	}

	last := saves[len(saves)-1]
	assert.Equal(t, task.StateFinished, last.State)
	assert.Equal(t, 1.0, last.Progress)
	assert.Len(t, last.Outputs, 5)
}

func TestRunNonZeroExit(t *testing.T) {
	program, in := setupRenderer(t, "--exit-code=3")
	tk := startedTask(t, "--iterations=4", "--save-every=3")

	store := &recordingStore{}
	s := New(Config{Program: program, Store: store, Logger: zerolog.Nop(), SaveBackoff: time.Millisecond})

	result, err := s.Run(context.Background(), tk, in)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, task.StateFinished, tk.State)
	assert.Equal(t, []string{"renderer exited with code 3"}, tk.ProcessErrors)
	assert.Len(t, tk.Outputs, 5)
}

func TestRunLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	program := Program{
		Command:          filepath.Join(dir, "missing-renderer"),
		WorkingDirectory: dir,
	}
	in := Inputs{StyleFile: filepath.Join(dir, "a.png"), TargetSemanticMap: filepath.Join(dir, "b_sem.png")}
	tk := startedTask(t)

	store := &recordingStore{}
	s := New(Config{Program: program, Store: store, Logger: zerolog.Nop(), SaveBackoff: time.Millisecond})

	result, err := s.Run(context.Background(), tk, in)
	require.NoError(t, err)

	assert.False(t, result.Launched)
	assert.Equal(t, task.StateFailed, tk.State)
	assert.Equal(t, 1.0, tk.Progress)
	require.NotNil(t, tk.Finished)
	require.Len(t, tk.ProcessErrors, 1)
	assert.Contains(t, tk.ProcessErrors[0], "failed to start renderer")
	assert.Empty(t, tk.Outputs)

	saves := store.snapshot()
	require.Len(t, saves, 1)
	assert.Equal(t, task.StateFailed, saves[0].State)
}

func TestRunRetriesTerminalSave(t *testing.T) {
	dir := t.TempDir()
	program := Program{Command: filepath.Join(dir, "missing-renderer"), WorkingDirectory: dir}
	in := Inputs{StyleFile: filepath.Join(dir, "a.png"), TargetSemanticMap: filepath.Join(dir, "b_sem.png")}
	unavailable := errors.New("store unavailable")

	t.Run("succeeds on the last attempt", func(t *testing.T) {
		store := &recordingStore{failAt: map[int]error{0: unavailable, 1: unavailable}}
		s := New(Config{Program: program, Store: store, Logger: zerolog.Nop(), SaveBackoff: time.Millisecond})

		_, err := s.Run(context.Background(), startedTask(t), in)
		require.NoError(t, err)
		assert.Len(t, store.snapshot(), 3)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		store := &recordingStore{failAt: map[int]error{0: unavailable, 1: unavailable, 2: unavailable}}
		s := New(Config{Program: program, Store: store, Logger: zerolog.Nop(), SaveBackoff: time.Millisecond})

		_, err := s.Run(context.Background(), startedTask(t), in)
		require.Error(t, err)
		assert.ErrorIs(t, err, unavailable)
		assert.Len(t, store.snapshot(), 3)
	})
}

func TestRunIgnoresCancellation(t *testing.T) {
	program, in := setupRenderer(t)
	tk := startedTask(t, "--iterations=4", "--save-every=3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &recordingStore{}
	s := New(Config{Program: program, Store: store, Logger: zerolog.Nop(), SaveBackoff: time.Millisecond})

	result, err := s.Run(ctx, tk, in)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, task.StateFinished, tk.State)
}
