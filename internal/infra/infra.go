// Package infra provides shared infrastructure used by the CLI and the HTTP
// API: a TTL cache for forecast runs, request rate limiting, and logger
// construction.
package infra
