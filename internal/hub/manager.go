// Package hub implementa o monitor hub: recebe logins e relatórios dos agentes
// e mantém o estado consultado pelo painel.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/cache"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/websocket"
)

const (
	// RecordLimit é o tamanho padrão das janelas de relatórios e exceções
	RecordLimit = 10
	// DefaultTimeout é o tempo sem atualização após o qual o agente fica offline
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrUnknownAgent indica um relatório de um ID que nunca fez login
	ErrUnknownAgent = errors.New("agente não fez login")
	// ErrUnknownAction indica uma ação fora de login/normal/warning/alert
	ErrUnknownAction = errors.New("ação desconhecida")
	// ErrInvalidLogin indica um descritor de login inválido
	ErrInvalidLogin = errors.New("login inválido")
)

// Broadcaster recebe os eventos aceitos para distribuição ao vivo
type Broadcaster interface {
	Publicar(websocket.MensagemWS)
}

// DataManager agrega o estado de todos os agentes
type DataManager struct {
	limit       int
	timeout     time.Duration
	now         func() time.Time
	log         zerolog.Logger
	metrics     *metrics.Registry
	cache       cache.Cache
	broadcaster Broadcaster
	validate    *validator.Validate

	mu     sync.RWMutex
	agents map[string]*Agent
}

// Option configura um DataManager
type Option func(*DataManager)

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(m *DataManager) { m.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(m *DataManager) { m.metrics = r }
}

// WithCache espelha o estado de cada agente no cache
func WithCache(c cache.Cache) Option {
	return func(m *DataManager) { m.cache = c }
}

// WithBroadcaster distribui cada evento aceito
func WithBroadcaster(b Broadcaster) Option {
	return func(m *DataManager) { m.broadcaster = b }
}

// WithRecordLimit define o tamanho das janelas
func WithRecordLimit(n int) Option {
	return func(m *DataManager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithTimeout define o limite para considerar um agente online
func WithTimeout(d time.Duration) Option {
	return func(m *DataManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock substitui o relógio
func WithClock(now func() time.Time) Option {
	return func(m *DataManager) { m.now = now }
}

// NewDataManager cria o gerenciador de dados do hub
func NewDataManager(opts ...Option) *DataManager {
	m := &DataManager{
		limit:    RecordLimit,
		timeout:  DefaultTimeout,
		now:      time.Now,
		log:      zerolog.Nop(),
		validate: validator.New(),
		agents:   make(map[string]*Agent),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle processa um envelope de POST /dataPost
func (m *DataManager) Handle(env monitorclient.Envelope) error {
	action := strings.ToLower(env.Action)
	switch action {
	case monitorclient.ActionLogin:
		var id Identity
		if err := json.Unmarshal(env.Data, &id); err != nil {
			m.metrics.RecordHubReport(action, "invalid")
			return fmt.Errorf("%w: %v", ErrInvalidLogin, err)
		}
		return m.HandleLogin(id)

	case monitorclient.ActionNormal, monitorclient.ActionWarning, monitorclient.ActionAlert:
		var ev monitorclient.Event
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			m.metrics.RecordHubReport(action, "invalid")
			return fmt.Errorf("relatório inválido de %s: %w", env.ID, err)
		}
		// a ação do envelope classifica o relatório
		ev.Type = action
		return m.HandleReport(env.ID, ev)

	default:
		m.metrics.RecordHubReport("unknown", "invalid")
		return fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
}

// HandleLogin registra o agente ou atualiza seus dados; pode ser repetido
func (m *DataManager) HandleLogin(id Identity) error {
	id.Type = strings.ToLower(id.Type)
	if err := m.validate.Struct(id); err != nil {
		m.metrics.RecordHubReport(monitorclient.ActionLogin, "invalid")
		return fmt.Errorf("%w: %v", ErrInvalidLogin, err)
	}

	var details Details = PLCInfo{LadderID: id.LadderID}
	if id.Type == monitorclient.TypeController {
		details = ControllerInfo{TargetID: id.TargetID, TargetIP: id.TargetIP}
	}

	now := m.now()
	m.mu.Lock()
	agent, ok := m.agents[id.ID]
	if ok {
		agent.refresh(id, details, now)
	} else {
		agent = newAgent(id, details, m.limit, now)
		m.agents[id.ID] = agent
	}
	state := agent.State(now, m.timeout)
	m.mu.Unlock()

	if ok {
		m.log.Info().Str("agent_id", id.ID).Str("tipo", id.Type).Msg("Dados do agente atualizados")
	} else {
		m.log.Info().Str("agent_id", id.ID).Str("tipo", id.Type).Str("ip", id.IP).Msg("Novo agente registrado")
	}

	m.metrics.RecordHubReport(monitorclient.ActionLogin, "accepted")
	m.publish("login", state, monitorclient.ActionLogin, state)
	return nil
}

// HandleReport adiciona um relatório ao agente; ErrUnknownAgent se o ID nunca fez login
func (m *DataManager) HandleReport(agentID string, ev monitorclient.Event) error {
	ev.Type = strings.ToLower(ev.Type)
	if !isReportType(ev.Type) {
		m.metrics.RecordHubReport("unknown", "invalid")
		return fmt.Errorf("%w: relatório do tipo %q", ErrUnknownAction, ev.Type)
	}

	now := m.now()
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		m.log.Warn().Str("agent_id", agentID).Msg("Relatório de agente que não fez login")
		m.metrics.RecordHubReport(ev.Type, "unknown")
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	agent.RecordReport(ev, now)
	state := agent.State(now, m.timeout)
	m.mu.Unlock()

	if ev.Type != monitorclient.ActionNormal {
		m.log.Warn().Str("agent_id", agentID).Str("tipo", ev.Type).Str("mensagem", ev.Message).Msg("Exceção reportada")
	} else {
		m.log.Debug().Str("agent_id", agentID).Str("mensagem", ev.Message).Msg("Relatório recebido")
	}

	m.metrics.RecordHubReport(ev.Type, "accepted")
	m.publish("report", state, ev.Type, ev)
	return nil
}

func isReportType(t string) bool {
	switch t {
	case monitorclient.ActionNormal, monitorclient.ActionWarning, monitorclient.ActionAlert:
		return true
	}
	return false
}

// QueryState retorna o estado de um agente
func (m *DataManager) QueryState(agentID string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return State{}, false
	}
	return agent.State(m.now(), m.timeout), true
}

// QueryAll retorna o estado dos agentes do tipo pedido (todos se vazio), ordenados por ID
func (m *DataManager) QueryAll(agentType string) []State {
	m.mu.RLock()
	now := m.now()
	states := make([]State, 0, len(m.agents))
	for _, agent := range m.agents {
		if agentType != "" && agent.Type() != agentType {
			continue
		}
		states = append(states, agent.State(now, m.timeout))
	}
	m.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// QueryReports retorna as janelas de relatórios e exceções de um agente
func (m *DataManager) QueryReports(agentID string) (Reports, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return Reports{}, false
	}
	return agent.Reports(), true
}

// Run atualiza periodicamente o gauge de agentes online até o contexto ser cancelado
func (m *DataManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.refreshOnline()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *DataManager) refreshOnline() {
	counts := map[string]int{monitorclient.TypePLC: 0, monitorclient.TypeController: 0}
	for _, s := range m.QueryAll("") {
		if s.Online {
			counts[s.Type]++
		}
	}
	for t, n := range counts {
		m.metrics.SetAgentsOnline(t, n)
	}
}

// publish espelha o estado no cache e distribui o evento
func (m *DataManager) publish(kind string, state State, action string, data interface{}) {
	msg := websocket.MensagemWS{
		Tipo:      kind,
		AgentID:   state.ID,
		AgentType: state.Type,
		Action:    action,
		Timestamp: state.LastUpdateT,
		Dados:     data,
	}

	if m.cache != nil {
		if err := cache.SetJSON(m.cache, cache.AgentStateKey(state.ID), state); err != nil {
			m.log.Warn().Err(err).Str("agent_id", state.ID).Msg("Erro ao espelhar estado no cache")
		}
		if payload, err := json.Marshal(msg); err == nil {
			if err := m.cache.Publish(cache.EventsChannel, string(payload)); err != nil {
				m.log.Debug().Err(err).Msg("Erro ao publicar evento no cache")
			}
		}
	}
	if m.broadcaster != nil {
		m.broadcaster.Publicar(msg)
	}
}
