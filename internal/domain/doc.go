// Package domain contains the core business entities of the image generation
// service: the Task, its lifecycle states and the failure messages recorded
// on terminal tasks. It has no knowledge of storage, queues or providers.
package domain
