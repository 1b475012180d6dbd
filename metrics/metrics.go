// Package metrics exposes run counters over prometheus. Registration happens
// on an explicit registry built at startup, not in init, so two runners in
// one process never collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SignalsTotal      *prometheus.CounterVec
	DecisionsTotal    *prometheus.CounterVec
	FillsTotal        *prometheus.CounterVec
	LiquidationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signals_total", Help: "Strategy signals consumed"},
			[]string{"symbol"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "decisions_total", Help: "Risk decisions by reason code"},
			[]string{"reason"},
		),
		FillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fills_total", Help: "Fills applied to the portfolio"},
			[]string{"symbol", "side"},
		),
		LiquidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "liquidations_total", Help: "Forced closes by reason code"},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(m.SignalsTotal, m.DecisionsTotal, m.FillsTotal, m.LiquidationsTotal)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener in the background and returns the server
// for shutdown.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
