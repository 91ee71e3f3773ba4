package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so that several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	Callbacks     *prometheus.CounterVec
	WalletLatency *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	Published     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i8gateway_callbacks_total",
			Help: "Provider callbacks handled, by event and resulting status code.",
		}, []string{"event", "status"}),
		WalletLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "i8gateway_wallet_request_seconds",
			Help:    "Latency of calls to agent wallets.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"op", "result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i8gateway_cache_lookups_total",
			Help: "Agent and commission config cache lookups.",
		}, []string{"result"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "i8gateway_ledger_events_published_total",
			Help: "Committed ledger records published to the event feed.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Callbacks, m.WalletLatency, m.CacheLookups, m.Published)
	return m
}

func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
