// Package prometheus renders sessionkit metrics in Prometheus text
// exposition format without depending on the Prometheus client library.
//
// [PrometheusExporter.Handler] serves a scrape endpoint; [PrometheusExporter.Render]
// produces the page for custom transports.
//
// # What this package must NOT do
//
//   - Register anything globally.
//   - Mutate engine state.
package prometheus
