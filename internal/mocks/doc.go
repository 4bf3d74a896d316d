// Package mocks provides test doubles for the store and provider boundaries.
//
// MockTaskStore keeps tasks in memory and honours conditional updates with
// the same semantics as the SQL store, so concurrency tests exercise the
// real claim protocol without a database.
package mocks
