// Package redisq implements the task queue on Redis Streams.
//
// Producers XADD task IDs to a stream. Consumers read through a consumer
// group and XACK a message once its delivery was handled. Messages whose
// handler failed stay in the pending list and are taken over with XAUTOCLAIM
// once they have been idle for ClaimIdle, by this consumer or any other.
// This gives at-least-once delivery across worker crashes.
package redisq
