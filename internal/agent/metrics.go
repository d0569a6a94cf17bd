package agent

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is an optional Prometheus bridge: observation throughput
// counters plus gauges sampled from the buffer and asset store on every
// scrape. The teacher's own use of github.com/prometheus/client_golang is
// as a query client (internal/metricdata/prometheus.go); this is the same
// dependency's exposition half, wired for a component the teacher itself
// never needed to expose.
type Metrics struct {
	registry *prometheus.Registry

	ObservationsIngested  prometheus.Counter
	ObservationsFiltered  prometheus.Counter
	ObservationsDropped   prometheus.Counter

	bufferOccupancy prometheus.GaugeFunc
	assetCount      prometheus.GaugeFunc
	adapterState    *prometheus.GaugeVec
}

// NewMetrics builds a Metrics bound to agent a, registering gauges that
// read a's live state at scrape time rather than being pushed to.
func NewMetrics(a *Agent) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ObservationsIngested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "mtconnect_agent",
			Name:      "observations_ingested_total",
			Help:      "Observations successfully pushed into the buffer.",
		}),
		ObservationsFiltered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "mtconnect_agent",
			Name:      "observations_filtered_total",
			Help:      "Observations dropped by min_delta/min_period/dedup filtering.",
		}),
		ObservationsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "mtconnect_agent",
			Name:      "observations_dropped_total",
			Help:      "Observations rejected outright: parse errors, oversized payloads.",
		}),
	}

	m.bufferOccupancy = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mtconnect_agent",
		Name:      "buffer_occupancy",
		Help:      "Observations currently held in the circular buffer.",
	}, func() float64 {
		next := a.NextSequence()
		first := a.FirstSequence()
		if next < first {
			return 0
		}
		return float64(next - first)
	})

	m.assetCount = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "mtconnect_agent",
		Name:      "assets_stored",
		Help:      "Assets currently held in the asset store.",
	}, func() float64 {
		return float64(a.assets.Len())
	})

	m.adapterState = promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mtconnect_agent",
		Name:      "adapter_connection_state",
		Help:      "Current AdapterState (0=disconnected,1=connecting,2=connected,3=reading) per adapter.",
	}, []string{"host", "port"})

	reg.MustRegister(newAdapterStateCollector(a, m.adapterState))

	return m
}

// adapterStateCollector refreshes the adapter_connection_state gauge
// vector from the agent's live adapter list just before each scrape,
// rather than keeping it updated on every state transition.
type adapterStateCollector struct {
	agent *Agent
	gauge *prometheus.GaugeVec
}

func newAdapterStateCollector(a *Agent, g *prometheus.GaugeVec) *adapterStateCollector {
	return &adapterStateCollector{agent: a, gauge: g}
}

func (c *adapterStateCollector) Describe(ch chan<- *prometheus.Desc) {
	c.gauge.Describe(ch)
}

func (c *adapterStateCollector) Collect(ch chan<- prometheus.Metric) {
	c.agent.mu.RLock()
	adapters := append([]*AdapterClient(nil), c.agent.adapters...)
	c.agent.mu.RUnlock()

	for _, ad := range adapters {
		c.gauge.WithLabelValues(ad.cfg.Host, strconv.Itoa(ad.cfg.Port)).Set(float64(ad.State()))
	}
	c.gauge.Collect(ch)
}

// Handler returns the http.Handler to mount at the configured metrics
// address, built with promhttp the same way any client_golang consumer
// exposes a registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
