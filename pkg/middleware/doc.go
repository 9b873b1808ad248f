// Package middleware provides the HTTP middleware chain: actor
// resolution from bearer tokens, request ids, request logging, and
// Redis-backed rate limiting.
package middleware
