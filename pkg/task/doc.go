// Package task defines the stylization task record and its lifecycle.
//
// Invariants:
// - State moves queued -> started -> finished|failed and never leaves a terminal state.
// - Progress never decreases within a run and is 1.0 only after the terminal transition.
// - Outputs are only appended to or replaced by a longer frame set.
//
// Usage:
//
//	t := &task.Task{ID: "abc", Inputs: inputs, State: task.StateQueued}
//	_ = t.MarkStarted(time.Now())
//	t.AdvanceProgress(0.25)
//	_ = t.MarkFinished(time.Now())
package task
