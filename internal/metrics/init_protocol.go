package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initProtocolMetrics() {
	r.ProtocolRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_protocol_requests_total",
			Help: "Requisições recebidas pelos servidores de protocolo",
		},
		[]string{"protocol", "operation", "status"},
	)

	r.LadderEvaluations = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_ladder_evaluations_total",
			Help: "Execuções da lógica ladder",
		},
		[]string{"ladder_id", "mode"},
	)

	r.ScanAlertsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "honeypot_scan_alerts_total",
			Help: "Varreduras de portas detectadas",
		},
	)
}

func (r *Registry) initControllerMetrics() {
	r.VerificationCycles = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_verification_cycles_total",
			Help: "Ciclos de verificação do controlador por resultado",
		},
		[]string{"outcome"},
	)

	r.ReportsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_reports_total",
			Help: "Eventos do cliente de relatório por status de entrega",
		},
		[]string{"status"},
	)
}

func (r *Registry) initHubMetrics() {
	r.HubReportsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_hub_reports_total",
			Help: "Mensagens recebidas pelo hub por ação",
		},
		[]string{"action", "status"},
	)

	r.HubAgentsOnline = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "honeypot_hub_agents_online",
			Help: "Agentes online por tipo",
		},
		[]string{"type"},
	)
}
