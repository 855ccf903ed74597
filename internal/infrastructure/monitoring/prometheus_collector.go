package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes relay metrics. Registration happens once via promauto;
// construct a single Collector per process.
type Collector struct {
	peersConnected prometheus.Gauge
	roomsActive    prometheus.Gauge

	roomsCreatedTotal  prometheus.Counter
	messagesForwarded  *prometheus.CounterVec
	relayFailures      *prometheus.CounterVec
	messageHandleTime  prometheus.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicebridge_peers_connected",
			Help: "Number of currently registered peers",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicebridge_rooms_active",
			Help: "Number of active rooms",
		}),

		roomsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_rooms_created_total",
			Help: "Total number of rooms created",
		}),

		messagesForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_messages_forwarded_total",
			Help: "Total negotiation messages forwarded, by type",
		}, []string{"type"}),

		relayFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_relay_failures_total",
			Help: "Total forwarding failures reported to senders, by reason",
		}, []string{"reason"}),

		messageHandleTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebridge_message_handle_seconds",
			Help:    "Time spent handling one inbound signaling message",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

func (c *Collector) SetPeersConnected(n int) {
	c.peersConnected.Set(float64(n))
}

func (c *Collector) SetRoomsActive(n int) {
	c.roomsActive.Set(float64(n))
}

func (c *Collector) RoomCreated() {
	c.roomsCreatedTotal.Inc()
}

func (c *Collector) MessageForwarded(messageType string) {
	c.messagesForwarded.WithLabelValues(messageType).Inc()
}

func (c *Collector) RelayFailure(reason string) {
	c.relayFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveMessageHandle(seconds float64) {
	c.messageHandleTime.Observe(seconds)
}
