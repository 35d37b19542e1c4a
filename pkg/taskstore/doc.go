// Package taskstore provides task.Store backends selected by connection URL.
//
// Supported schemes:
// - mongodb:// and mongodb+srv:// for the shared document store
// - sqlite://<path> for a single-host embedded store
// - memory:// for development and tests
package taskstore
