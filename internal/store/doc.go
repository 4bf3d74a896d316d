// Package store defines interfaces for task persistence.
//
// The store is the only synchronization point between concurrent workers:
// every state transition is expressed as a conditional update (TaskFilter)
// and callers learn whether they won by the number of affected rows.
package store
