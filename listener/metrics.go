package listener

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	packets   prometheus.Counter
	exchanges prometheus.Counter
	bodies    *prometheus.CounterVec
	publishes prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Subsystem: "listener",
			Name:      "packets_total",
			Help:      "Packets read from the capture source.",
		}),
		exchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Subsystem: "listener",
			Name:      "exchanges_total",
			Help:      "Reassembled HTTP request/response pairs.",
		}),
		bodies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Subsystem: "listener",
			Name:      "bodies_total",
			Help:      "HTTP bodies seen, by whether they could be fitted as JSON.",
		}, []string{"outcome"}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Subsystem: "listener",
			Name:      "publishes_total",
			Help:      "Successful schema updates sent to the server.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.exchanges, m.bodies, m.publishes)
	}
	return m
}
