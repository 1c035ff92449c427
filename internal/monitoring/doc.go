// Package monitoring provides Prometheus metrics for the decision core and
// its HTTP surface.
package monitoring
