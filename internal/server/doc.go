// Package server exposes calsync over HTTP.
//
// ServerContext carries the dependencies shared by every surface (the
// operations service, the trigger runtime, the store and the
// instrumentation) and runs callables with tracing, metrics and audit
// logging through Invoke.
//
// HTTPServer serves:
//   - POST /callable/{name}: user-invoked operations. Callers authenticate
//     with an HS256 bearer token whose subject is their user id.
//   - POST /triggers: record change deliveries from an external document
//     store, handed to the trigger runtime.
//   - /healthz, /readyz and /healthz/detailed for Kubernetes probes.
//
// MetricsServer serves Prometheus metrics on a separate port.
package server
