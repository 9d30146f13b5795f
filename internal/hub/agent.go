package hub

import (
	"time"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
)

// Identity é o descritor recebido no login
type Identity = monitorclient.Identity

// Details é a parte do agente que depende do seu tipo
type Details interface {
	Type() string
	apply(*State)
}

// PLCInfo identifica a lógica ladder de um emulador de PLC
type PLCInfo struct {
	LadderID string
}

// Type implementa Details
func (PLCInfo) Type() string { return monitorclient.TypePLC }

func (p PLCInfo) apply(s *State) { s.LadderInfo = p.LadderID }

// ControllerInfo identifica o PLC alvo de um controlador
type ControllerInfo struct {
	TargetID string
	TargetIP string
}

// Type implementa Details
func (ControllerInfo) Type() string { return monitorclient.TypeController }

func (c ControllerInfo) apply(s *State) {
	s.TargetID = c.TargetID
	s.TargetIP = c.TargetIP
}

// State é o estado derivado exposto pela API
type State struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	IP            string `json:"ip"`
	Protocol      string `json:"protocol"`
	LastUpdateT   string `json:"lastUpdateT"`
	ReportT       int64  `json:"reportT"` // minutos entre o login e a última atualização
	Online        bool   `json:"online"`
	ExceptCount   int    `json:"exceptCount"`
	TotalRptCount int    `json:"totalRptCount"`
	LadderInfo    string `json:"ladderInfo,omitempty"`
	TargetID      string `json:"TargetID,omitempty"`
	TargetIP      string `json:"TargetIP,omitempty"`
}

// Reports são as janelas de relatórios e exceções de um agente
type Reports struct {
	Report []monitorclient.Event `json:"report"`
	Alert  []monitorclient.Event `json:"alert"`
}

// Agent é um PLC ou controlador registrado
type Agent struct {
	ID       string
	IP       string
	Protocol string
	Details  Details

	loginAt     time.Time
	lastUpdate  time.Time
	reports     []monitorclient.Event
	exceptions  []monitorclient.Event
	exceptCount int
	reportCount int
	limit       int
}

func newAgent(id Identity, details Details, limit int, now time.Time) *Agent {
	a := &Agent{limit: limit, loginAt: now}
	a.refresh(id, details, now)
	return a
}

func (a *Agent) refresh(id Identity, details Details, now time.Time) {
	a.ID = id.ID
	a.IP = id.IP
	a.Protocol = id.Protocol
	a.Details = details
	a.lastUpdate = now
}

// Type retorna o tipo do agente
func (a *Agent) Type() string { return a.Details.Type() }

// RecordReport adiciona um relatório às janelas; warning e alert também contam como exceção
func (a *Agent) RecordReport(ev monitorclient.Event, now time.Time) {
	a.lastUpdate = now
	a.reportCount++
	a.reports = push(a.reports, ev, a.limit)

	if ev.Type == monitorclient.ActionWarning || ev.Type == monitorclient.ActionAlert {
		a.exceptCount++
		a.exceptions = push(a.exceptions, ev, a.limit)
	}
}

// State calcula o estado derivado; online se a última atualização tem menos de timeout
func (a *Agent) State(now time.Time, timeout time.Duration) State {
	s := State{
		ID:            a.ID,
		Type:          a.Type(),
		IP:            a.IP,
		Protocol:      a.Protocol,
		LastUpdateT:   a.lastUpdate.UTC().Format(monitorclient.TimeLayout),
		ReportT:       int64(a.lastUpdate.Sub(a.loginAt) / time.Minute),
		Online:        now.Sub(a.lastUpdate) < timeout,
		ExceptCount:   a.exceptCount,
		TotalRptCount: a.reportCount,
	}
	a.Details.apply(&s)
	return s
}

// Reports retorna cópias das janelas atuais
func (a *Agent) Reports() Reports {
	return Reports{
		Report: append([]monitorclient.Event{}, a.reports...),
		Alert:  append([]monitorclient.Event{}, a.exceptions...),
	}
}

// push adiciona ev mantendo no máximo limit itens
func push(list []monitorclient.Event, ev monitorclient.Event, limit int) []monitorclient.Event {
	list = append(list, ev)
	if over := len(list) - limit; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}
