package graphql

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/socialgate/errors"
)

// gatewayMetrics tracks operation outcomes per transport kind.
type gatewayMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationsFailed *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	subscribers      prometheus.Gauge
}

func newGatewayMetrics(reg prometheus.Registerer) (*gatewayMetrics, error) {
	m := &gatewayMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgate_operations_total",
			Help: "Operations handled, by transport kind",
		}, []string{"kind"}),
		operationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialgate_operations_failed_total",
			Help: "Operations that ended in an error, by transport kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialgate_operation_duration_seconds",
			Help:    "Operation duration, by transport kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "socialgate_subscription_clients",
			Help: "Currently connected subscription clients",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.operationsTotal, m.operationsFailed, m.duration, m.subscribers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "gatewayMetrics", "newGatewayMetrics", "register collector")
		}
	}
	return m, nil
}

func (m *gatewayMetrics) record(kind TransportKind, start time.Time, err error) {
	if m == nil {
		return
	}
	label := kind.String()
	m.operationsTotal.WithLabelValues(label).Inc()
	if err != nil {
		m.operationsFailed.WithLabelValues(label).Inc()
	}
	m.duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func (m *gatewayMetrics) clientConnected() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *gatewayMetrics) clientDisconnected() {
	if m != nil {
		m.subscribers.Dec()
	}
}
