// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - /v1/profiles for tracked accounts and their follower history.
//   - POST /v1/refresh and /v1/profiles/{id}/refresh enqueue refresh jobs,
//     polled through GET /v1/jobs/{job_id}.
//   - POST /v1/scrape/test runs one synchronous scrape without persisting it.
package api
