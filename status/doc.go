// Package status exposes a running pipeline over HTTP.
//
//	GET /healthz  overall and per-component health; 503 when unhealthy
//	GET /stages   stage snapshots of every registered pipeline
//	GET /version  build information
//
// The server is a component.Component, so it is started and stopped by the
// same registry as the pipelines it reports on.
package status
