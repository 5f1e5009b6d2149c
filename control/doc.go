// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration snapshot and debug introspection for the
// HTTP engine.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with reload listeners
//   - Lock-free counters and last-value gauges
//   - Named debug probes evaluated on demand
package control
