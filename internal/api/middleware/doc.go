// Package middleware provides the HTTP middleware of the imggen API: request
// tracing, anonymous owner cookies and the authentication of internal
// endpoints (signed push deliveries and the reconcile cron).
package middleware
