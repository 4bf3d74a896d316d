// Package generation defines the boundary between the task engine and remote
// image generation services. A Provider accepts a prompt asynchronously and
// is polled for the outcome; implementations live under internal/platform.
package generation
