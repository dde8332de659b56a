// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status for the live counters of the current archive run.
//   - GET /archive and /archive/{version}/{page}/{number} to browse stored
//     posts through the configured sink.
package api
