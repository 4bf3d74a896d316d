// Package qstash publishes tasks through an HTTP push queue in the style of
// Upstash QStash and verifies the signatures on the deliveries it makes.
//
// A published message is later POSTed to the worker URL with an
// Upstash-Signature header: an HS256 JWT whose body claim is the base64url
// SHA-256 of the request body. The sender retries non-2xx responses, which
// makes the push path at-least-once.
package qstash
