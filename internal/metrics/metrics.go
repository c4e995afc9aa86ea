package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the Masthead service
type Metrics struct {
	// Cache store metrics
	CacheReads     *prometheus.CounterVec // result: hit | miss | stale
	CacheRefreshes *prometheus.CounterVec // trigger: background | sync

	// Mutation engine metrics
	Mutations      *prometheus.CounterVec   // action, result: success | rollback
	BusyRejections *prometheus.CounterVec   // action
	MutationTime   *prometheus.HistogramVec // action

	// Gateway metrics
	GatewayRequests *prometheus.CounterVec   // operation, status
	GatewayDuration *prometheus.HistogramVec // operation

	// Real-time metrics
	HubClients     *prometheus.GaugeVec   // no labels
	CountdownTicks *prometheus.CounterVec // no labels
}
