package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the realtime counters. A nil *Metrics records nothing.
type Metrics struct {
	ConnectedChannels    prometheus.Gauge
	OnlineIdentities     prometheus.Gauge
	HandshakesTotal      *prometheus.CounterVec
	DispatchesTotal      *prometheus.CounterVec
	PushesDelivered      *prometheus.CounterVec
	PushesDropped        *prometheus.CounterVec
	EvictionsTotal       prometheus.Counter
	NotificationsCreated *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec
}

// New registers the metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectedChannels: f.NewGauge(prometheus.GaugeOpts{
			Name: "realm_ws_connected_channels",
			Help: "Current number of authenticated websocket channels",
		}),
		OnlineIdentities: f.NewGauge(prometheus.GaugeOpts{
			Name: "realm_ws_online_identities",
			Help: "Current number of identities with at least one live channel",
		}),
		HandshakesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_ws_handshakes_total",
			Help: "Total number of auth attempts by result",
		}, []string{"result"}),
		DispatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_dispatches_total",
			Help: "Total number of dispatch calls by message type",
		}, []string{"type"}),
		PushesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_pushes_delivered_total",
			Help: "Total number of push frames enqueued on live channels",
		}, []string{"type"}),
		PushesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_pushes_dropped_total",
			Help: "Total number of push frames skipped on closed or full channels",
		}, []string{"type"}),
		EvictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "realm_ws_evictions_total",
			Help: "Total number of channels closed for not draining their send buffer",
		}),
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realm_notifications_created_total",
			Help: "Total number of notifications persisted by kind",
		}, []string{"kind"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realm_dispatch_duration_seconds",
			Help:    "Time spent resolving the audience and enqueuing pushes",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
}

func (m *Metrics) SetRegistrySize(identities, channels int) {
	if m == nil {
		return
	}
	m.OnlineIdentities.Set(float64(identities))
	m.ConnectedChannels.Set(float64(channels))
}

func (m *Metrics) IncrementHandshake(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.HandshakesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDispatch(msgType string, delivered, dropped int, took time.Duration) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(msgType).Inc()
	m.PushesDelivered.WithLabelValues(msgType).Add(float64(delivered))
	m.PushesDropped.WithLabelValues(msgType).Add(float64(dropped))
	m.DispatchDuration.WithLabelValues(msgType).Observe(took.Seconds())
}

func (m *Metrics) IncrementEvictions() {
	if m == nil {
		return
	}
	m.EvictionsTotal.Inc()
}

func (m *Metrics) IncrementNotifications(kind string) {
	if m == nil {
		return
	}
	m.NotificationsCreated.WithLabelValues(kind).Inc()
}
