package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Normalized ticks ingested by the detector"},
		[]string{"exchange", "pair"},
	)
	TicksRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_rejected_total", Help: "Raw ticks dropped by the normalizer"},
		[]string{"exchange"},
	)
	OpportunitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "opportunities_total", Help: "Spread opportunities emitted"},
		[]string{"pair"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Simulated trades by outcome"},
		[]string{"pair", "outcome"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconnects_total", Help: "Reconnect attempts per exchange"},
		[]string{"exchange"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, TicksRejected, OpportunitiesTotal, TradesTotal, ReconnectsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
