package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "masomo"

type metrics struct {
	guardDecisions *prometheus.CounterVec
	authOps        *prometheus.CounterVec
	liveClients    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "guard_decisions_total",
			Help:      "Navigation decisions taken by the route guards.",
		}, []string{"guard", "decision"}),
		authOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_operations_total",
			Help:      "Authentication operations by outcome.",
		}, []string{"op", "outcome"}),
		liveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_clients",
			Help:      "Application instances currently held in memory.",
		}),
	}
}

func (m *metrics) decision(guard, kind string) {
	m.guardDecisions.WithLabelValues(guard, kind).Inc()
}

func (m *metrics) authOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.authOps.WithLabelValues(op, outcome).Inc()
}

func metricsHandler(gatherer prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
