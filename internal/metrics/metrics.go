// Package metrics holds Prometheus instruments that are used across the
// tenant-lifecycle core.  All collectors are registered with the global
// registry, so importing this package in main.go is enough to expose them
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_connections_active",
			Help: "Number of tenant database handles currently open.",
		})

	ConnectionOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_connection_open_total",
			Help: "Cumulative number of tenant database handles opened.",
		})

	ConnectionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_connection_errors_total",
			Help: "Cumulative number of tenant connection failures.",
		})

	ConnectionEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_connection_evict_total",
			Help: "Cumulative number of idle tenant handles evicted from the pool.",
		})

	ProvisionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_provision_total",
			Help: "Provisioning workflow outcomes, labelled by result.",
		},
		[]string{"result"}, // "success", "failure", "rollback_failure"
	)

	MigrationsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_migrations_applied_total",
			Help: "Cumulative number of schema migrations applied across tenants.",
		})
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		ConnectionOpenTotal,
		ConnectionErrorsTotal,
		ConnectionEvictTotal,
		ProvisionTotal,
		MigrationsApplied,
	)
}
