package task

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State is the lifecycle state of a task
type State string

const (
	StateQueued   State = "queued"
	StateStarted  State = "started"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// RequiredInputs is the number of input blobs a task must carry:
// base style, style semantic map and target semantic map.
const RequiredInputs = 3

// MaxIntermediateProgress is the highest progress a running task may report.
const MaxIntermediateProgress = 0.99

var (
	// ErrNotFound is returned by a Store when no task has the given ID
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a state change is not allowed
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// Task is a single stylization job and the record of its outcome
type Task struct {
	ID            string     `json:"id"`
	Inputs        [][]byte   `json:"inputs"`
	Outputs       [][]byte   `json:"outputs"`
	Arguments     []string   `json:"arguments"`
	State         State      `json:"state"`
	Progress      float64    `json:"progress"`
	ProcessErrors []string   `json:"processErrors"`
	Queued        time.Time  `json:"queued"`
	Started       *time.Time `json:"started,omitempty"`
	Finished      *time.Time `json:"finished,omitempty"`
}

// IsTerminal reports whether the state is finished or failed
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}

// HasRequiredInputs reports whether all three input blobs are present
func (t *Task) HasRequiredInputs() bool {
	if len(t.Inputs) < RequiredInputs {
		return false
	}
	for _, input := range t.Inputs[:RequiredInputs] {
		if input == nil {
			return false
		}
	}
	return true
}

// MissingInput returns the name of the first missing input, or "" if none is missing
func (t *Task) MissingInput() string {
	names := [RequiredInputs]string{"base style", "style semantic map", "output semantic map"}
	for i, name := range names {
		if i >= len(t.Inputs) || t.Inputs[i] == nil {
			return name
		}
	}
	return ""
}

// MarkStarted moves a queued task into the started state. A task that is
// already started was recovered from a dead agent; its run starts over but
// keeps the original start time.
func (t *Task) MarkStarted(now time.Time) error {
	if t.State.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, StateStarted)
	}

	if t.State == StateStarted {
		t.Outputs = nil
	}
	if t.Started == nil {
		t.Started = &now
	}
	t.State = StateStarted
	t.Progress = 0
	return nil
}

// MarkFinished moves a started task into the finished state
func (t *Task) MarkFinished(now time.Time) error {
	return t.terminate(StateFinished, now)
}

// MarkFailed moves a started task into the failed state and records the cause
func (t *Task) MarkFailed(now time.Time, cause error) error {
	if err := t.terminate(StateFailed, now); err != nil {
		return err
	}
	if cause != nil {
		t.ProcessErrors = append(t.ProcessErrors, cause.Error())
	}
	return nil
}

func (t *Task) terminate(state State, now time.Time) error {
	if t.State != StateStarted {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, state)
	}

	t.State = state
	t.Progress = 1.0
	t.Finished = &now
	return nil
}

// RecordError appends an error description without changing the state
func (t *Task) RecordError(description string) {
	t.ProcessErrors = append(t.ProcessErrors, description)
}

// AdvanceProgress sets the progress of a started task. The value is capped at
// MaxIntermediateProgress and rounded to two significant digits; values lower
// than the current progress are ignored. It reports whether progress changed.
func (t *Task) AdvanceProgress(p float64) bool {
	if t.State != StateStarted {
		return false
	}

	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > MaxIntermediateProgress {
		p = MaxIntermediateProgress
	}
	p = roundSignificant(p, 2)

	if p <= t.Progress {
		return false
	}
	t.Progress = p
	return true
}

// ReplaceFrames replaces the outputs with the current set of frames. A frame
// set shorter than the existing outputs is ignored.
func (t *Task) ReplaceFrames(frames [][]byte) bool {
	if len(frames) < len(t.Outputs) {
		return false
	}
	t.Outputs = frames
	return true
}

// AppendOutput appends a blob to the outputs
func (t *Task) AppendOutput(blob []byte) {
	t.Outputs = append(t.Outputs, blob)
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	c.Inputs = cloneBlobs(t.Inputs)
	c.Outputs = cloneBlobs(t.Outputs)
	c.Arguments = append([]string(nil), t.Arguments...)
	c.ProcessErrors = append([]string(nil), t.ProcessErrors...)
	if t.Started != nil {
		started := *t.Started
		c.Started = &started
	}
	if t.Finished != nil {
		finished := *t.Finished
		c.Finished = &finished
	}
	return &c
}

func cloneBlobs(blobs [][]byte) [][]byte {
	if blobs == nil {
		return nil
	}
	out := make([][]byte, len(blobs))
	for i, b := range blobs {
		if b != nil {
			out[i] = append([]byte{}, b...)
		}
	}
	return out
}

// roundSignificant rounds x to n significant digits
func roundSignificant(x float64, n int) float64 {
	if x == 0 {
		return 0
	}
	magnitude := math.Ceil(math.Log10(math.Abs(x)))
	scale := math.Pow(10, float64(n)-magnitude)
	return math.Round(x*scale) / scale
}
