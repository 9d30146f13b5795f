package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry reúne todas as métricas de um processo do honeypot
type Registry struct {
	// Protocolo (Modbus/S7comm)
	ProtocolRequestsTotal *prometheus.CounterVec
	LadderEvaluations     *prometheus.CounterVec
	ScanAlertsTotal       prometheus.Counter

	// Controlador
	VerificationCycles *prometheus.CounterVec

	// Cliente de relatório
	ReportsTotal *prometheus.CounterVec

	// Hub
	HubReportsTotal *prometheus.CounterVec
	HubAgentsOnline *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewRegistry cria um registro com todas as métricas inicializadas
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initProtocolMetrics()
	r.initControllerMetrics()
	r.initHubMetrics()

	return r
}

// GetPrometheusRegistry retorna o registro Prometheus subjacente
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler expõe as métricas no formato texto do Prometheus
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
