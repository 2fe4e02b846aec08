// Package internaldefs holds the metric catalog shared by the Prometheus and
// OTel exporters: one definition per counter and histogram, plus the bucket
// bound tables. It exists so adding a metric is a one-file change.
package internaldefs
