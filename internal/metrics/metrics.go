package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliproxyctl",
			Subsystem: "control",
			Name:      "actions_total",
			Help:      "Control actions performed, by action and outcome.",
		}, []string{"action", "outcome"},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cliproxyctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound control API requests, by path and status code.",
		}, []string{"path", "code"},
	)
	serverUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cliproxyctl",
			Subsystem: "server",
			Name:      "up",
			Help:      "Whether the managed server process is currently running.",
		},
	)
	serverMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cliproxyctl",
			Subsystem: "server",
			Name:      "memory_mb",
			Help:      "Resident memory of the managed server in MB (0 when unknown).",
		},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{actionsTotal, requestsTotal, serverUp, serverMemoryMB}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncAction(action, outcome string) {
	if regOK.Load() {
		actionsTotal.WithLabelValues(action, outcome).Inc()
	}
}

func IncRequest(path, code string) {
	if regOK.Load() {
		requestsTotal.WithLabelValues(path, code).Inc()
	}
}

func SetServerUp(up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1.0
		}
		serverUp.Set(v)
	}
}

func SetServerMemoryMB(mb float64) {
	if regOK.Load() {
		serverMemoryMB.Set(mb)
	}
}
