// Package prometheus renders trustcore engine metrics in the Prometheus text
// exposition format. It has no dependency on the Prometheus client library.
package prometheus
