// Package telemetry centralizes OpenTelemetry SDK setup: one place that
// builds the TracerProvider and MeterProvider and installs them globally.
// With telemetry disabled nothing is exported and the globals stay noop.
package telemetry
