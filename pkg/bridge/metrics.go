package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bridge counters exported to Prometheus.
type Metrics struct {
	Sessions       *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Rejected       prometheus.Counter
	BytesToDevice  prometheus.Counter
	BytesToRemote  prometheus.Counter
	Clears         *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "sessions_total",
			Help:      "Total number of remote sessions served",
		}, []string{"transport"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "active_sessions",
			Help:      "Number of sessions using the device",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "rejected_sessions_total",
			Help:      "Sessions rejected because the device was in use",
		}),
		BytesToDevice: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "device_tx_bytes_total",
			Help:      "Bytes written to the device",
		}),
		BytesToRemote: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "device_rx_bytes_total",
			Help:      "Bytes received from the device and relayed",
		}),
		Clears: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eeprom",
			Subsystem: "bridge",
			Name:      "clears_total",
			Help:      "Buffer clear requests",
		}, []string{"buffer"}),
	}
}
