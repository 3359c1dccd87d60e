// Package api hosts the HTTP server, middleware, and REST handlers of the
// bookmark service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/bookmarks and /v1/collections for the per-user stores.
//   - POST /v1/metadata for ad-hoc page metadata extraction.
//
// Every /v1 route requires the caller identity header set by the upstream
// auth layer.
package api
