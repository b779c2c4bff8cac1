package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zeusync/hubdash/internal/core/events/bus"
)

const namespace = "hubdash"

// Tick results recorded on Metrics.Ticks.
const (
	TickSampled = "sampled"
	TickSkipped = "skipped"
)

// Metrics groups the Prometheus collectors exported by the service.
type Metrics struct {
	CPUPercent  prometheus.Gauge
	MemoryBytes prometheus.Gauge
	Sessions    prometheus.Gauge
	EventsTotal prometheus.Counter
	Ticks       *prometheus.CounterVec

	BusPublished     prometheus.Counter
	BusHandlerErrors prometheus.Counter
	BusDelivery      prometheus.Histogram
}

// New registers all collectors on reg. A nil reg gets a private registry so
// callers that do not export metrics can still record them.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		CPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "Process CPU utilisation over the last sample interval.",
		}),
		MemoryBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Resident set size of the process.",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Connected dashboard sessions.",
		}),
		EventsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Hub events observed by the dashboard relay.",
		}),
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Broadcast loop ticks by result.",
		}, []string{"result"}),
		BusPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_published_total",
			Help:      "Events published on the hub bus.",
		}),
		BusHandlerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_handler_errors_total",
			Help:      "Publications where at least one handler failed.",
		}),
		BusDelivery: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_delivery_seconds",
			Help:      "Time spent delivering one event to all handlers.",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
		}),
	}
}

// BusObserver adapts Metrics to bus.EventBusObserver.
func (m *Metrics) BusObserver() bus.EventBusObserver {
	return busObserver{m: m}
}

type busObserver struct {
	m *Metrics
}

func (o busObserver) OnPublish(string, bus.Event) {
	o.m.BusPublished.Inc()
}

func (o busObserver) OnDelivered(_ string, _ int, err error, d time.Duration) {
	if err != nil {
		o.m.BusHandlerErrors.Inc()
	}
	o.m.BusDelivery.Observe(d.Seconds())
}
