// Package middleware provides the HTTP middleware of the kratos API:
// request metrics, security headers, CORS, body size limits and per-client
// rate limiting.
package middleware
