package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedTask() *Task {
	return &Task{
		ID:     "task-1",
		Inputs: [][]byte{[]byte("style"), []byte("style-map"), []byte("target-map")},
		State:  StateQueued,
		Queued: time.Now(),
	}
}

func TestHasRequiredInputs(t *testing.T) {
	tests := []struct {
		name    string
		inputs  [][]byte
		want    bool
		missing string
	}{
		{"all inputs", [][]byte{{1}, {2}, {3}}, true, ""},
		{"no inputs", nil, false, "base style"},
		{"two inputs", [][]byte{{1}, {2}}, false, "output semantic map"},
		{"nil style map", [][]byte{{1}, nil, {3}}, false, "style semantic map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &Task{Inputs: tt.inputs}
			assert.Equal(t, tt.want, tk.HasRequiredInputs())
			assert.Equal(t, tt.missing, tk.MissingInput())
		})
	}
}

func TestLifecycle(t *testing.T) {
	tk := newQueuedTask()
	now := time.Now()

	require.NoError(t, tk.MarkStarted(now))
	assert.Equal(t, StateStarted, tk.State)
	require.NotNil(t, tk.Started)
	assert.Equal(t, now, *tk.Started)
	assert.Nil(t, tk.Finished)

	require.NoError(t, tk.MarkFinished(now.Add(time.Second)))
	assert.Equal(t, StateFinished, tk.State)
	assert.Equal(t, 1.0, tk.Progress)
	require.NotNil(t, tk.Finished)

	t.Run("terminal state is final", func(t *testing.T) {
		err := tk.MarkFailed(time.Now(), errors.New("late"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StateFinished, tk.State)
		assert.Empty(t, tk.ProcessErrors)

		assert.ErrorIs(t, tk.MarkStarted(time.Now()), ErrInvalidTransition)
	})
}

func TestMarkStartedRestartsRecoveredTask(t *testing.T) {
	tk := newQueuedTask()
	started := time.Now()
	require.NoError(t, tk.MarkStarted(started))
	tk.AdvanceProgress(0.5)
	tk.AppendOutput([]byte("frame"))

	require.NoError(t, tk.MarkStarted(started.Add(time.Minute)))
	assert.Equal(t, StateStarted, tk.State)
	assert.Zero(t, tk.Progress)
	assert.Empty(t, tk.Outputs)
	require.NotNil(t, tk.Started)
	assert.Equal(t, started, *tk.Started, "the start time is set once")
}

func TestMarkFailedRecordsCause(t *testing.T) {
	tk := newQueuedTask()
	require.NoError(t, tk.MarkStarted(time.Now()))

	require.NoError(t, tk.MarkFailed(time.Now(), errors.New("exec: not found")))
	assert.Equal(t, StateFailed, tk.State)
	assert.Equal(t, 1.0, tk.Progress)
	assert.Equal(t, []string{"exec: not found"}, tk.ProcessErrors)
}

func TestFinishRequiresStarted(t *testing.T) {
	tk := newQueuedTask()
	assert.ErrorIs(t, tk.MarkFinished(time.Now()), ErrInvalidTransition)
	assert.Equal(t, StateQueued, tk.State)
	assert.Nil(t, tk.Finished)
}

func TestAdvanceProgress(t *testing.T) {
	t.Run("ignored before start", func(t *testing.T) {
		tk := newQueuedTask()
		assert.False(t, tk.AdvanceProgress(0.5))
		assert.Equal(t, 0.0, tk.Progress)
	})

	t.Run("rounds to two significant digits", func(t *testing.T) {
		tk := newQueuedTask()
		require.NoError(t, tk.MarkStarted(time.Now()))

		assert.True(t, tk.AdvanceProgress(1.0/12))
		assert.Equal(t, 0.083, tk.Progress)

		assert.True(t, tk.AdvanceProgress(2.0/12))
		assert.Equal(t, 0.17, tk.Progress)
	})

	t.Run("capped below one", func(t *testing.T) {
		tk := newQueuedTask()
		require.NoError(t, tk.MarkStarted(time.Now()))

		assert.True(t, tk.AdvanceProgress(1.5))
		assert.Equal(t, MaxIntermediateProgress, tk.Progress)
		assert.False(t, tk.AdvanceProgress(1.0))
		assert.Equal(t, MaxIntermediateProgress, tk.Progress)
	})

	t.Run("never decreases", func(t *testing.T) {
		tk := newQueuedTask()
		require.NoError(t, tk.MarkStarted(time.Now()))

		assert.True(t, tk.AdvanceProgress(0.5))
		assert.False(t, tk.AdvanceProgress(0.25))
		assert.Equal(t, 0.5, tk.Progress)
	})
}

func TestReplaceFrames(t *testing.T) {
	tk := newQueuedTask()

	assert.True(t, tk.ReplaceFrames([][]byte{{1}, {2}}))
	assert.Len(t, tk.Outputs, 2)

	assert.False(t, tk.ReplaceFrames([][]byte{{1}}))
	assert.Len(t, tk.Outputs, 2)

	tk.AppendOutput([]byte("final"))
	assert.Len(t, tk.Outputs, 3)
	assert.Equal(t, []byte("final"), tk.Outputs[2])
}

func TestClone(t *testing.T) {
	tk := newQueuedTask()
	require.NoError(t, tk.MarkStarted(time.Now()))
	tk.AppendOutput([]byte("frame"))

	c := tk.Clone()
	c.Outputs[0][0] = 'X'
	c.Inputs[0] = nil
	*c.Started = time.Time{}

	assert.Equal(t, []byte("frame"), tk.Outputs[0])
	assert.NotNil(t, tk.Inputs[0])
	assert.False(t, tk.Started.IsZero())
}

func TestRoundSignificant(t *testing.T) {
	assert.Equal(t, 0.0, roundSignificant(0, 2))
	assert.Equal(t, 0.99, roundSignificant(0.99, 2))
	assert.Equal(t, 0.25, roundSignificant(0.25, 2))
	assert.Equal(t, 0.33, roundSignificant(1.0/3, 2))
	assert.Equal(t, 0.0042, roundSignificant(0.00416, 2))
}
