// Package otel exposes authsync metrics as OpenTelemetry observable
// instruments. Values are read from the engine snapshot at collection time,
// so the exporter adds nothing to the coordination paths.
package otel
