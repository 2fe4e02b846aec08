// Package prometheus renders Service metrics in Prometheus text exposition
// format, without depending on the Prometheus client library. Mount
// Exporter.Handler on a scrape path.
package prometheus
