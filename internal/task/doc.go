// Package task implements the lifecycle of image generation tasks: the
// Dispatcher that claims a queued task under a time-bounded lease, the
// executor that drives the provider within that lease, and the Reconciler
// that fails tasks whose deadline or lease has run out.
//
// There are no in-process locks around task state. Every transition is a
// conditional update in the store, scoped to the state the caller observed;
// a caller whose update affects zero rows has lost a race and stops quietly.
// This keeps Dispatch safe under at-least-once delivery, where the same task
// may be dispatched many times, concurrently, on different processes.
package task
