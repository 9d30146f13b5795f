// Package ladder implementa a lógica ladder do PLC emulado: uma tabela fixa de
// rungs booleanos que transforma 8 entradas em 8 saídas.
package ladder

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// InputCount é o tamanho do vetor de entradas de toda tabela
const InputCount = 8

var (
	ErrInvalidInputLength = errors.New("tamanho do vetor de entradas inválido")
	ErrUnknownLadder      = errors.New("lógica ladder desconhecida")
	ErrInvalidRung        = errors.New("rung inválido")
	ErrUnknownProtocol    = errors.New("protocolo sem layout de PLC")
)

// Logic é a capacidade de avaliar entradas e produzir saídas
type Logic interface {
	ID() string
	Evaluate(inputs []bool) ([]bool, error)
}

// RungSpec descreve um rung como expressão sobre as entradas i0..i7,
// por exemplo "i0 && !i7"
type RungSpec struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Expr string `json:"expr" yaml:"expr" validate:"required"`
}

// Rung é um rung compilado
type Rung struct {
	RungSpec
	program *vm.Program
}

// Table é uma sequência ordenada de rungs identificada por um ID de ladder
type Table struct {
	id    string
	rungs []Rung
}

// NewTable compila os rungs de uma tabela
func NewTable(id string, specs []RungSpec) (*Table, error) {
	if len(specs) != InputCount {
		return nil, fmt.Errorf("ladder %s: %d rungs, esperado %d: %w", id, len(specs), InputCount, ErrInvalidRung)
	}

	t := &Table{id: id, rungs: make([]Rung, 0, len(specs))}
	for _, s := range specs {
		program, err := expr.Compile(s.Expr, expr.Env(inputEnv(make([]bool, InputCount))), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("ladder %s rung %s (%q): %v: %w", id, s.Name, s.Expr, err, ErrInvalidRung)
		}
		t.rungs = append(t.rungs, Rung{RungSpec: s, program: program})
	}
	return t, nil
}

// MustTable é como NewTable mas entra em pânico em caso de erro
func MustTable(id string, specs []RungSpec) *Table {
	t, err := NewTable(id, specs)
	if err != nil {
		panic(err)
	}
	return t
}

// ID retorna o identificador da lógica
func (t *Table) ID() string {
	return t.id
}

// Rungs retorna as especificações dos rungs na ordem de saída
func (t *Table) Rungs() []RungSpec {
	specs := make([]RungSpec, len(t.rungs))
	for i, r := range t.rungs {
		specs[i] = r.RungSpec
	}
	return specs
}

// Evaluate calcula as saídas. Um vetor de tamanho diferente de InputCount
// retorna nil e ErrInvalidInputLength.
func (t *Table) Evaluate(inputs []bool) ([]bool, error) {
	if len(inputs) != InputCount {
		return nil, fmt.Errorf("ladder %s: recebidas %d entradas: %w", t.id, len(inputs), ErrInvalidInputLength)
	}

	env := inputEnv(inputs)
	outputs := make([]bool, len(t.rungs))
	for i, r := range t.rungs {
		out, err := expr.Run(r.program, env)
		if err != nil {
			return nil, fmt.Errorf("ladder %s rung %s: %w", t.id, r.Name, err)
		}
		outputs[i] = out.(bool)
	}
	return outputs, nil
}

func inputEnv(inputs []bool) map[string]interface{} {
	env := make(map[string]interface{}, len(inputs))
	for i, v := range inputs {
		env["i"+strconv.Itoa(i)] = v
	}
	return env
}
