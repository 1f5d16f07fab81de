package tacplus

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "tacplus"
	metricsSubsystem = "client"
)

// Collector holds the Prometheus metrics a Connection reports against, in
// the same shape as a production network-protocol daemon's metrics
// collector: session gauges, wire-level packet counters, and counters for
// the admission and drop decisions the session manager makes. A nil
// *Collector is valid and every method on it is a no-op, so instrumenting
// a Connection is opt-in.
type Collector struct {
	Sessions         prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsRejected prometheus.Counter
	PacketsSent      prometheus.Counter
	PacketsReceived  prometheus.Counter
	PacketsDropped   *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions",
			Help:      "Number of currently open sessions on the connection.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_created_total",
			Help:      "Total sessions successfully created.",
		}),
		SessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "sessions_rejected_total",
			Help:      "Total CreateSession calls rejected because the connection stopped admitting.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "packets_sent_total",
			Help:      "Total packets written to the underlying stream.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "packets_received_total",
			Help:      "Total packets read from the underlying stream.",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets discarded by the router, labeled by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.Sessions, c.SessionsCreated, c.SessionsRejected,
		c.PacketsSent, c.PacketsReceived, c.PacketsDropped)
	return c
}

// Reasons recorded against PacketsDropped.
const (
	dropReasonNoSession  = "no_session"
	dropReasonQueueFull  = "queue_full"
)

func (c *Collector) sessionCreated() {
	if c == nil {
		return
	}
	c.Sessions.Inc()
	c.SessionsCreated.Inc()
}

func (c *Collector) sessionClosed() {
	if c == nil {
		return
	}
	c.Sessions.Dec()
}

func (c *Collector) sessionRejected() {
	if c == nil {
		return
	}
	c.SessionsRejected.Inc()
}

func (c *Collector) packetSent() {
	if c == nil {
		return
	}
	c.PacketsSent.Inc()
}

func (c *Collector) packetReceived() {
	if c == nil {
		return
	}
	c.PacketsReceived.Inc()
}

func (c *Collector) packetDropped(reason string) {
	if c == nil {
		return
	}
	c.PacketsDropped.WithLabelValues(reason).Inc()
}
