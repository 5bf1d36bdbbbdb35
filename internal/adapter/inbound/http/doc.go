// Package http hosts the auditdesk HTTP server.
//
// The server mounts an API handler at the root and adds:
//
//	GET /health   - component checks, 503 when a store is unreachable
//	GET /metrics  - Prometheus exposition
//
// Every API request gets an X-Request-ID (echoed when supplied) and a
// request-scoped logger, and is counted in auditdesk_requests_total and
// auditdesk_request_duration_seconds. Metrics also implements the access
// service's decision recorder and the watcher's observer, so decision
// counts and the access_open gauge share the same registry.
package http
