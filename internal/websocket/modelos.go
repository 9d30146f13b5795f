package websocket

// MensagemWS é um evento do hub enviado aos painéis conectados
type MensagemWS struct {
	Tipo      string      `json:"type"` // login ou report
	AgentID   string      `json:"agent_id"`
	AgentType string      `json:"agent_type"`
	Action    string      `json:"action"`
	Timestamp string      `json:"timestamp"`
	Dados     interface{} `json:"data"`
}

// ComandoFiltro troca o agente acompanhado por um cliente já conectado
type ComandoFiltro struct {
	AgentID string `json:"agent_id"`
}
