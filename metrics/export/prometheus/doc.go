// Package prometheus exposes engine counters through a client_golang
// [prometheus.Collector].
//
// Counter names are prefixed tenantauth_*_total; the single histogram is
// tenantauth_validate_latency_seconds. The collector reads a snapshot on
// every scrape and never mutates engine state. Callers own the registry.
package prometheus
