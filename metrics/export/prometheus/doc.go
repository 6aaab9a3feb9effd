// Package prometheus exposes authcore engine metrics as a Prometheus
// collector.
//
// [NewCollector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so engine counters stay the single source of truth.
// Register the collector on your own registry, or use [Handler] for a
// private registry served over HTTP. Nothing is registered globally.
package prometheus
