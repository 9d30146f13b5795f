package metrics

// Os métodos abaixo toleram receptor nil para que componentes funcionem sem métricas.

// RecordProtocolRequest registra uma requisição de protocolo
func (r *Registry) RecordProtocolRequest(protocol, operation, status string) {
	if r == nil {
		return
	}
	r.ProtocolRequestsTotal.WithLabelValues(protocol, operation, status).Inc()
}

// RecordLadderEvaluation registra uma execução da lógica ladder (mode: live ou verify)
func (r *Registry) RecordLadderEvaluation(ladderID, mode string) {
	if r == nil {
		return
	}
	r.LadderEvaluations.WithLabelValues(ladderID, mode).Inc()
}

// RecordScanAlert registra uma varredura de portas detectada
func (r *Registry) RecordScanAlert() {
	if r == nil {
		return
	}
	r.ScanAlertsTotal.Inc()
}

// RecordVerificationCycle registra o resultado de um ciclo de verificação
func (r *Registry) RecordVerificationCycle(outcome string) {
	if r == nil {
		return
	}
	r.VerificationCycles.WithLabelValues(outcome).Inc()
}

// RecordReport registra o destino de um evento do cliente de relatório
func (r *Registry) RecordReport(status string) {
	if r == nil {
		return
	}
	r.ReportsTotal.WithLabelValues(status).Inc()
}

// RecordHubReport registra uma mensagem recebida pelo hub
func (r *Registry) RecordHubReport(action, status string) {
	if r == nil {
		return
	}
	r.HubReportsTotal.WithLabelValues(action, status).Inc()
}

// SetAgentsOnline atualiza o número de agentes online de um tipo
func (r *Registry) SetAgentsOnline(agentType string, count int) {
	if r == nil {
		return
	}
	r.HubAgentsOnline.WithLabelValues(agentType).Set(float64(count))
}
