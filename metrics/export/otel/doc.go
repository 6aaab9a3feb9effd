// Package otel publishes authcore engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency histogram bucket. A single callback
// reads [authcore.Engine.MetricsSnapshot] on each collection. The caller owns
// the MeterProvider.
package otel
