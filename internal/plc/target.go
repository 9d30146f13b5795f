// Package plc contém os clientes usados pelo controlador para exercitar o PLC alvo.
package plc

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

var (
	// ErrConnectionLost indica falha de transporte com o PLC alvo
	ErrConnectionLost = errors.New("conexão com o PLC alvo perdida")
	// ErrUnsupportedProtocol indica protocolo de alvo desconhecido
	ErrUnsupportedProtocol = errors.New("protocolo de PLC não suportado")
)

// Target é um PLC remoto endereçado por (bloco, offset) com valores booleanos
type Target interface {
	Connect() error
	WriteBool(addr memory.Address, value bool) error
	ReadBools(addrs []memory.Address) ([]bool, error)
	Close() error
}

// TargetConfig identifica o PLC alvo
type TargetConfig struct {
	Protocol string
	IP       string
	Port     int
	Rack     int
	Slot     int
	UnitID   uint8
	Timeout  time.Duration
}

// NewTarget cria o cliente adequado ao protocolo do alvo
func NewTarget(cfg TargetConfig) (Target, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	switch cfg.Protocol {
	case "modbus":
		return NewModbusClient(cfg), nil
	case "s7comm":
		return NewS7Client(cfg), nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Protocol, ErrUnsupportedProtocol)
}

// readGroup é uma faixa contígua de offsets de um bloco lida em uma só requisição
type readGroup struct {
	block int
	start int
	count int
}

// groupReads agrupa os endereços por bloco, cobrindo do menor ao maior offset
func groupReads(addrs []memory.Address) []readGroup {
	bounds := make(map[int][2]int)
	for _, a := range addrs {
		b, ok := bounds[a.Block]
		if !ok {
			bounds[a.Block] = [2]int{a.Offset, a.Offset}
			continue
		}
		if a.Offset < b[0] {
			b[0] = a.Offset
		}
		if a.Offset > b[1] {
			b[1] = a.Offset
		}
		bounds[a.Block] = b
	}

	groups := make([]readGroup, 0, len(bounds))
	for block, b := range bounds {
		groups = append(groups, readGroup{block: block, start: b[0], count: b[1] - b[0] + 1})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].block < groups[j].block })
	return groups
}

// pick monta o resultado na ordem de addrs a partir das faixas lidas
func pick(addrs []memory.Address, groups []readGroup, values map[int][]bool) []bool {
	starts := make(map[int]int, len(groups))
	for _, g := range groups {
		starts[g.block] = g.start
	}
	out := make([]bool, len(addrs))
	for i, a := range addrs {
		out[i] = values[a.Block][a.Offset-starts[a.Block]]
	}
	return out
}
