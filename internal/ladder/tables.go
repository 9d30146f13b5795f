package ladder

import (
	"fmt"
	"sort"
	"sync"
)

// IDs das tabelas embutidas
const (
	ModbusLadderID = "modbus-ladder-v1"
	S7LadderID     = "s7comm-ladder-v1"
)

// ModbusRungs é a tabela do PLC Modbus: entradas HR0..HR7, saídas nas bobinas 0..7
var ModbusRungs = []RungSpec{
	{Name: "c0", Expr: "i0 && i7"},
	{Name: "c1", Expr: "!i1"},
	{Name: "c2", Expr: "i2 && i3 && i4"},
	{Name: "c3", Expr: "!i0 || i6"},
	{Name: "c4", Expr: "!(i4 || i5)"},
	{Name: "c5", Expr: "!i0 && i6"},
	{Name: "c6", Expr: "i3 || !i7"},
	{Name: "c7", Expr: "i5"},
}

// S7Rungs é a tabela do PLC S7comm: entradas DB1/DB2, saídas DB3/DB4
var S7Rungs = []RungSpec{
	{Name: "c0", Expr: "i0 && i1"},
	{Name: "c1", Expr: "!i2"},
	{Name: "c2", Expr: "i3"},
	{Name: "c3", Expr: "i0 || i6"},
	{Name: "c4", Expr: "!(i4 || i5)"},
	{Name: "c5", Expr: "i5 || i6"},
	{Name: "c6", Expr: "i3 || !i7"},
	{Name: "c7", Expr: "!i5"},
}

// Registry associa IDs de ladder às tabelas disponíveis
type Registry struct {
	mu     sync.RWMutex
	tables map[string]Logic
}

// NewRegistry cria um registro com as tabelas embutidas
func NewRegistry() *Registry {
	r := &Registry{tables: make(map[string]Logic)}
	r.tables[ModbusLadderID] = MustTable(ModbusLadderID, ModbusRungs)
	r.tables[S7LadderID] = MustTable(S7LadderID, S7Rungs)
	return r
}

// Register adiciona ou substitui uma lógica
func (r *Registry) Register(l Logic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[l.ID()] = l
}

// RegisterSpecs compila e registra uma tabela vinda da configuração
func (r *Registry) RegisterSpecs(id string, specs []RungSpec) error {
	t, err := NewTable(id, specs)
	if err != nil {
		return err
	}
	r.Register(t)
	return nil
}

// Lookup retorna a lógica de um ID
func (r *Registry) Lookup(id string) (Logic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.tables[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownLadder)
	}
	return l, nil
}

// IDs lista os IDs registrados
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
