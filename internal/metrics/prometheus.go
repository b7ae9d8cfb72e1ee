package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds the gateway daemon's process metrics.
type Registry struct {
	// Reconciler
	ReconcileTotal    *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	ReconcileErrors   *prometheus.CounterVec
	NetworksManaged   prometheus.Gauge

	// Watchdog
	WatchdogTicks       prometheus.Counter
	WatchdogTickErrors  *prometheus.CounterVec
	PeersConnected      prometheus.Gauge
	TrafficBytesTotal   *prometheus.CounterVec
	PeerEventsEmitted   *prometheus.CounterVec

	// Control-plane session
	SessionState         prometheus.Gauge
	SessionReconnects     prometheus.Counter
	ApplyRequestsTotal    *prometheus.CounterVec
	ApplyRequestDuration  prometheus.Histogram

	// Broadcast hub
	BroadcastPublished *prometheus.CounterVec
	BroadcastDropped   *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_reconcile_total",
		Help: "Total reconcile passes, by kind (full, partial) and outcome",
	}, []string{"kind", "outcome"})

	r.ReconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_reconcile_duration_seconds",
		Help:    "Time spent applying a reconcile pass",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	r.ReconcileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_reconcile_errors_total",
		Help: "Reconcile errors by stage (namespace, wireguard, veth, firewall, proxy)",
	}, []string{"stage"})

	r.NetworksManaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_networks_managed",
		Help: "Number of networks currently present in realized state",
	})

	r.WatchdogTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_watchdog_ticks_total",
		Help: "Total watchdog sampling ticks executed",
	})

	r.WatchdogTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_watchdog_tick_errors_total",
		Help: "Watchdog tick errors by stage (list_namespaces, sample_network, persist)",
	}, []string{"stage"})

	r.PeersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_peers_connected",
		Help: "Peers currently considered connected (recent handshake) across all networks",
	})

	r.TrafficBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_traffic_bytes_total",
		Help: "Traffic bytes observed by the watchdog, by network and direction",
	}, []string{"network", "direction"})

	r.PeerEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_peer_events_total",
		Help: "Peer lifecycle events emitted by the watchdog",
	}, []string{"kind"})

	r.SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_session_state",
		Help: "Control-plane session state (0=disconnected, 1=connecting, 2=connected, 3=draining)",
	})

	r.SessionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_session_reconnects_total",
		Help: "Total control-plane reconnect attempts",
	})

	r.ApplyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_apply_requests_total",
		Help: "Apply/apply-partial requests received from the manager, by outcome",
	}, []string{"kind", "outcome"})

	r.ApplyRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_apply_request_duration_seconds",
		Help:    "Time from receiving an apply request to emitting its result",
		Buckets: prometheus.DefBuckets,
	})

	r.BroadcastPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_broadcast_published_total",
		Help: "Events published to broadcast hubs, by hub",
	}, []string{"hub"})

	r.BroadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_broadcast_dropped_total",
		Help: "Events dropped (oldest-first) due to a full subscriber queue, by hub",
	}, []string{"hub"})

	return r
}

// RecordReconcile records the outcome of a single reconcile pass.
func (r *Registry) RecordReconcile(kind, outcome string, seconds float64) {
	r.ReconcileTotal.WithLabelValues(kind, outcome).Inc()
	r.ReconcileDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordApplyRequest records the outcome of an apply/apply-partial request.
func (r *Registry) RecordApplyRequest(kind, outcome string, seconds float64) {
	r.ApplyRequestsTotal.WithLabelValues(kind, outcome).Inc()
	r.ApplyRequestDuration.Observe(seconds)
}
