// Package supervisor runs the neural-doodle renderer for one task and turns
// the frames it writes into task progress.
//
// Invariants:
// - Intermediate saves carry progress of at most 0.99 and never decrease.
// - Exactly one terminal save follows the renderer exit or launch failure.
// - The frames directory is emptied before every run and owned by the run.
//
// Usage:
//
//	s := supervisor.New(supervisor.Config{Program: program, Store: store, Logger: logger})
//	result, err := s.Run(ctx, t, supervisor.Inputs{StyleFile: style, TargetSemanticMap: target})
package supervisor
