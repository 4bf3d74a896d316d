// Package queue defines the at-least-once delivery contract between task
// creation and the Dispatcher, plus an in-process implementation.
//
// Every transport delivers bare task IDs. Deliveries may be duplicated or
// reordered; the Dispatcher tolerates both. A Handler error asks for
// redelivery unless it is marked Permanent.
package queue
