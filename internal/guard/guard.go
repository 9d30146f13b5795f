// Package guard concentra o que os servidores de protocolo fazem em toda
// requisição: checar a allow-list, auditar e contar.
package guard

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/audit"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
)

// DeniedFunc é chamada a cada requisição bloqueada pela allow-list
type DeniedFunc func(op access.Operation, ip string)

// Guard aplica a política de acesso de um servidor
type Guard struct {
	protocol string
	policy   *access.Policy
	auditor  audit.Auditor
	metrics  *metrics.Registry
	log      zerolog.Logger
	onDenied DeniedFunc
}

// New cria um guard para o protocolo informado
func New(protocol string, policy *access.Policy, log zerolog.Logger) *Guard {
	return &Guard{
		protocol: protocol,
		policy:   policy,
		auditor:  audit.Nop{},
		log:      log,
	}
}

// WithAuditor define o auditor das requisições
func (g *Guard) WithAuditor(a audit.Auditor) *Guard {
	if a != nil {
		g.auditor = a
	}
	return g
}

// WithMetrics define o registro de métricas
func (g *Guard) WithMetrics(r *metrics.Registry) *Guard {
	g.metrics = r
	return g
}

// OnDenied define o callback de acesso negado
func (g *Guard) OnDenied(fn DeniedFunc) *Guard {
	g.onDenied = fn
	return g
}

// Request descreve uma requisição de protocolo já decodificada
type Request struct {
	Op       access.Operation
	ClientIP string
	Block    int
	Offset   int
	Quantity int
}

// Authorize verifica a allow-list; uma negação já é auditada e notificada
func (g *Guard) Authorize(req Request) error {
	err := g.policy.Check(req.Op, req.ClientIP)
	if err == nil {
		return nil
	}

	g.log.Warn().
		Str("ip", req.ClientIP).
		Str("operacao", string(req.Op)).
		Int("bloco", req.Block).
		Int("offset", req.Offset).
		Msg("Requisição bloqueada pela allow-list")

	g.Record(req, "", err)
	if g.onDenied != nil {
		g.onDenied(req.Op, req.ClientIP)
	}
	return err
}

// Record audita e conta o resultado de uma requisição
func (g *Guard) Record(req Request, value string, err error) {
	status := audit.StatusAccepted
	details := ""
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		status = audit.StatusDenied
	case err != nil:
		status = audit.StatusRejected
		details = err.Error()
	}

	g.metrics.RecordProtocolRequest(g.protocol, string(req.Op), status)

	entry := audit.Entry{
		Protocol:  g.protocol,
		ClientIP:  req.ClientIP,
		Operation: string(req.Op),
		Block:     req.Block,
		Offset:    req.Offset,
		Quantity:  req.Quantity,
		Value:     value,
		Status:    status,
		Details:   details,
	}
	if aerr := g.auditor.LogEntry(entry); aerr != nil {
		g.log.Debug().Err(aerr).Msg("Entrada de auditoria descartada")
	}
}

// FormatValues representa valores gravados para a auditoria
func FormatValues(values interface{}) string {
	return fmt.Sprint(values)
}
