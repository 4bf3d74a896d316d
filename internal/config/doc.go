// Package config handles configuration loading, parsing, and validation
// from environment variables, an optional config.yaml and an optional .env
// file. Environment variables use the IMGGEN_ prefix, for example
// IMGGEN_DATABASE_URL or IMGGEN_TASK_LEASE_DURATION.
package config
