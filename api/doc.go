// Package api defines the wire types of the BiasLens HTTP API.
//
// # API Overview
//
// BiasLens exposes a small HTTP surface next to the library API:
//   - POST /v1/analyze runs one analysis through the fallback chain
//   - GET /ops/providers, /ops/performance and /ops/cache report chain state
//   - POST /ops/breakers/reset closes every circuit breaker
//   - GET /healthz, /readyz and /metrics for probes and Prometheus
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
