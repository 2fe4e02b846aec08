// Package otel exports Service metrics as OpenTelemetry observable
// instruments. Counters map to Int64ObservableCounter; histogram buckets are
// exposed as cumulative gauges since the core tracks fixed buckets, not
// samples.
package otel
