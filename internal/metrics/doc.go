// Package metrics exposes Prometheus collectors for herald.
//
// Collectors are package-level vars so any package can record without
// carrying a registry handle. Init() registers everything with the
// default registry; the /metrics endpoint is served by promhttp.
package metrics
