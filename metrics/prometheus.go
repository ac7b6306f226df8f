package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector is a Prometheus-backed Sink. Register it on any
// prometheus.Registerer (or leave reg nil to use the default one) and
// pass it as a ServerConfig.Metrics value.
type Collector struct {
	connsAccepted prometheus.Counter
	connsClosed   prometheus.Counter
	connsEvicted  *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

// NewCollector registers wirehttp's connection/request counters against
// reg. A nil reg registers against prometheus.DefaultRegisterer via
// promauto, matching the common embedding pattern.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		connsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wirehttp",
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted.",
		}),
		connsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wirehttp",
			Name:      "connections_closed_total",
			Help:      "Total connections closed, for any reason.",
		}),
		connsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wirehttp",
			Name:      "connections_evicted_total",
			Help:      "Connections force-closed by the throughput monitor, by reason.",
		}, []string{"reason"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wirehttp",
			Name:      "requests_completed_total",
			Help:      "Requests completed, by response status code.",
		}, []string{"status"}),
	}
}

func (c *Collector) ConnAccepted() { c.connsAccepted.Inc() }
func (c *Collector) ConnClosed()   { c.connsClosed.Inc() }

func (c *Collector) RequestCompleted(status int) {
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (c *Collector) ConnEvicted(reason string) {
	c.connsEvicted.WithLabelValues(reason).Inc()
}
