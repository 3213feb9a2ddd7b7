// Package metrics registra las métricas Prometheus del pipeline de DTE.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	folioAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dte_folio_allocations_total",
			Help: "Folios asignados por tipo de documento y resultado",
		},
		[]string{"doc_type", "outcome"},
	)

	transmissionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dte_transmission_attempts_total",
			Help: "Intentos de comunicación con el SII por operación y resultado",
		},
		[]string{"kind", "outcome"},
	)

	transmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dte_transmission_duration_seconds",
			Help:    "Latencia de cada intento contra el SII",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dte_status_transitions_total",
			Help: "Transiciones de estado de documentos",
		},
		[]string{"doc_type", "status"},
	)

	pipelineInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dte_pipeline_inflight",
			Help: "Documentos en proceso en el pool de workers",
		},
	)
)

// FolioAllocated outcome: ok, exhausted, error.
func FolioAllocated(docType int, outcome string) {
	folioAllocations.WithLabelValues(strconv.Itoa(docType), outcome).Inc()
}

// TransmissionAttempt registra un intento (kind: upload, status, token).
func TransmissionAttempt(kind, outcome string, seconds float64) {
	transmissionAttempts.WithLabelValues(kind, outcome).Inc()
	transmissionDuration.WithLabelValues(kind).Observe(seconds)
}

// StatusTransition registra la llegada de un documento a un estado.
func StatusTransition(docType int, status string) {
	statusTransitions.WithLabelValues(strconv.Itoa(docType), status).Inc()
}

// InFlight ajusta el gauge de trabajos en curso (+1 / -1).
func InFlight(delta float64) {
	pipelineInFlight.Add(delta)
}
