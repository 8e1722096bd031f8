// Package otel exposes trustcore engine metrics as OpenTelemetry observable
// instruments. The caller owns the MeterProvider; a single callback reads
// the engine snapshot on each collection.
package otel
