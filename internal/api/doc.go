// Package api hosts the admin HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/targets and /v1/targets/{target_id} to inspect crawl targets.
//   - POST /v1/targets/{target_id}/crawl to queue an on-demand run; pass
//     ignore_repetitive=false to re-notify identifiers already seen.
//   - POST /v1/platforms/{platform}/tick to run a platform's schedule once.
package api
