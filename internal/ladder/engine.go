package ladder

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
)

// Layout define onde ficam as entradas e saídas da lógica no mapa de memória
type Layout struct {
	Inputs     []memory.Address
	Outputs    []memory.Address
	InputKind  memory.Kind
	OutputKind memory.Kind
}

// FlatLayout usa um vetor contíguo de entradas e outro de saídas (estilo registrador/bobina)
func FlatLayout(inBlock, outBlock int, inKind, outKind memory.Kind) Layout {
	l := Layout{InputKind: inKind, OutputKind: outKind}
	for i := 0; i < InputCount; i++ {
		l.Inputs = append(l.Inputs, memory.Address{Block: inBlock, Offset: i})
		l.Outputs = append(l.Outputs, memory.Address{Block: outBlock, Offset: i})
	}
	return l
}

// BlockLayout distribui entradas e saídas por dois blocos cada, nos offsets dados
// (estilo DB do S7: DB1/DB2 entradas, DB3/DB4 saídas nos offsets 0, 2, 4 e 6)
func BlockLayout(inBlocks, outBlocks [2]int, offsets []int, kind memory.Kind) Layout {
	l := Layout{InputKind: kind, OutputKind: kind}
	for _, b := range inBlocks {
		for _, off := range offsets {
			l.Inputs = append(l.Inputs, memory.Address{Block: b, Offset: off})
		}
	}
	for _, b := range outBlocks {
		for _, off := range offsets {
			l.Outputs = append(l.Outputs, memory.Address{Block: b, Offset: off})
		}
	}
	return l
}

// ProtocolLayout retorna o layout do PLC emulado para o protocolo e o ID da
// sua lógica padrão
func ProtocolLayout(protocol string) (Layout, string, error) {
	switch protocol {
	case "modbus":
		return FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool), ModbusLadderID, nil
	case "s7comm":
		return BlockLayout([2]int{1, 2}, [2]int{3, 4}, []int{0, 2, 4, 6}, memory.Bool), S7LadderID, nil
	}
	return Layout{}, "", fmt.Errorf("%q: %w", protocol, ErrUnknownProtocol)
}

// Declare declara no mapa todos os endereços do layout
func (l Layout) Declare(m *memory.Map) error {
	declare := func(addrs []memory.Address, kind memory.Kind) error {
		byBlock := make(map[int][]int)
		var order []int
		for _, a := range addrs {
			if _, ok := byBlock[a.Block]; !ok {
				order = append(order, a.Block)
			}
			byBlock[a.Block] = append(byBlock[a.Block], a.Offset)
		}
		for _, b := range order {
			offs := byBlock[b]
			kinds := make([]memory.Kind, len(offs))
			for i := range kinds {
				kinds[i] = kind
			}
			if err := m.Declare(b, offs, kinds); err != nil {
				return err
			}
		}
		return nil
	}

	if err := declare(l.Inputs, l.InputKind); err != nil {
		return err
	}
	return declare(l.Outputs, l.OutputKind)
}

// Engine liga uma lógica a um layout e, opcionalmente, a um mapa de memória vivo
type Engine struct {
	logic   Logic
	layout  Layout
	inputs  map[memory.Address]struct{}
	log     zerolog.Logger
	metrics *metrics.Registry
}

// Option configura um Engine
type Option func(*Engine)

// WithLogger define o logger do engine
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

// NewEngine valida o layout contra a lógica
func NewEngine(logic Logic, layout Layout, opts ...Option) (*Engine, error) {
	if len(layout.Inputs) != InputCount {
		return nil, fmt.Errorf("layout com %d entradas: %w", len(layout.Inputs), ErrInvalidInputLength)
	}
	if len(layout.Outputs) == 0 || len(layout.Outputs) > InputCount {
		return nil, fmt.Errorf("layout com %d saídas: %w", len(layout.Outputs), ErrInvalidRung)
	}

	zero, err := logic.Evaluate(make([]bool, InputCount))
	if err != nil {
		return nil, fmt.Errorf("ladder %s: %w", logic.ID(), err)
	}
	if len(zero) < len(layout.Outputs) {
		return nil, fmt.Errorf("ladder %s produz %d saídas, layout exige %d: %w", logic.ID(), len(zero), len(layout.Outputs), ErrInvalidRung)
	}

	e := &Engine{
		logic:  logic,
		layout: layout,
		inputs: make(map[memory.Address]struct{}, len(layout.Inputs)),
		log:    zerolog.Nop(),
	}
	for _, a := range layout.Inputs {
		e.inputs[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ID retorna o ID da lógica
func (e *Engine) ID() string {
	return e.logic.ID()
}

// Layout retorna o layout do engine
func (e *Engine) Layout() Layout {
	return e.layout
}

// Evaluate avalia um vetor de entradas sem tocar em memória (modo verificação)
func (e *Engine) Evaluate(inputs []bool) ([]bool, error) {
	out, err := e.evaluate(inputs)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordLadderEvaluation(e.logic.ID(), "verify")
	return out, nil
}

// evaluate recorta a saída da lógica ao número de saídas do layout
func (e *Engine) evaluate(inputs []bool) ([]bool, error) {
	out, err := e.logic.Evaluate(inputs)
	if err != nil {
		return nil, err
	}
	if len(out) < len(e.layout.Outputs) {
		return nil, fmt.Errorf("ladder %s produziu %d saídas, esperado %d: %w", e.logic.ID(), len(out), len(e.layout.Outputs), ErrInvalidRung)
	}
	return out[:len(e.layout.Outputs)], nil
}

// IsInput informa se o endereço pertence às entradas da lógica
func (e *Engine) IsInput(a memory.Address) bool {
	_, ok := e.inputs[a]
	return ok
}

// Bind executa um primeiro ciclo sobre o mapa e registra o engine como
// ouvinte: toda escrita aceita em uma entrada, mesmo sem mudança de valor,
// reavalia a lógica antes de a escrita retornar ao chamador
func (e *Engine) Bind(m *memory.Map) error {
	if err := m.Update(e.Scan); err != nil {
		return fmt.Errorf("erro no ciclo inicial da lógica %s: %w", e.logic.ID(), err)
	}
	m.OnWrite(func(tx *memory.Tx, changed []memory.Address) {
		for _, a := range changed {
			if e.IsInput(a) {
				if err := e.Scan(tx); err != nil {
					e.log.Error().Err(err).Str("endereco", a.String()).Msg("Falha ao executar lógica ladder")
				}
				return
			}
		}
	})
	return nil
}

// Scan lê todas as entradas do tx, avalia a lógica e grava as saídas
func (e *Engine) Scan(tx *memory.Tx) error {
	inputs := make([]bool, len(e.layout.Inputs))
	for i, a := range e.layout.Inputs {
		v, err := tx.Read(a.Block, a.Offset)
		if err != nil {
			return fmt.Errorf("erro ao ler entrada %s: %w", a, err)
		}
		inputs[i] = memory.Truthy(v)
	}

	outputs, err := e.evaluate(inputs)
	if err != nil {
		return err
	}

	for i, a := range e.layout.Outputs {
		if err := tx.Write(a.Block, a.Offset, memory.FromBool(e.layout.OutputKind, outputs[i])); err != nil {
			return fmt.Errorf("erro ao gravar saída %s: %w", a, err)
		}
	}

	e.metrics.RecordLadderEvaluation(e.logic.ID(), "live")
	e.log.Debug().Interface("entradas", inputs).Interface("saidas", outputs).Msg("Lógica ladder executada")
	return nil
}
