// Package memory implementa o mapa de memória tipado de um PLC emulado.
//
// Cada bloco (área Modbus ou DB S7) contém offsets declarados com um tipo fixo.
// Todas as leituras e escritas passam pelo mutex único do mapa; ouvintes
// registrados com OnWrite são chamados dentro da mesma seção crítica da escrita
// que os disparou.
package memory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Kind identifica o tipo de valor armazenado em um endereço
type Kind int

const (
	Bool Kind = iota
	Int       // inteiro de 16 bits com sinal
	Real      // ponto flutuante de 32 bits
)

// String retorna o nome do tipo
func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Real:
		return "real"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Size retorna o tamanho em bytes do tipo na imagem de um DB
func (k Kind) Size() int {
	switch k {
	case Int:
		return 2
	case Real:
		return 4
	}
	return 1
}

// ParseKind converte o nome de um tipo em Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "bool":
		return Bool, nil
	case "int", "int16":
		return Int, nil
	case "real", "float":
		return Real, nil
	}
	return 0, fmt.Errorf("tipo de memória desconhecido: %s", name)
}

var (
	ErrUnknownAddress = errors.New("endereço de memória não declarado")
	ErrTypeMismatch   = errors.New("tipo do valor diferente do declarado")
	ErrLengthMismatch = errors.New("número de offsets e tipos diferente")
)

// Address identifica um valor pelo bloco e offset
type Address struct {
	Block  int `json:"block"`
	Offset int `json:"offset"`
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%d", a.Block, a.Offset)
}

// Listener recebe os endereços gravados por uma escrita bem-sucedida, mesmo
// quando o valor gravado é igual ao anterior.
// É executado com o mutex do mapa adquirido; escritas feitas pelo tx não
// disparam ouvintes novamente.
type Listener func(tx *Tx, changed []Address)

type cell struct {
	kind  Kind
	value interface{}
}

// Map é o armazenamento endereçável do PLC
type Map struct {
	mu        sync.Mutex
	blocks    map[int]map[int]*cell
	listeners []Listener
}

// New cria um mapa vazio
func New() *Map {
	return &Map{
		blocks: make(map[int]map[int]*cell),
	}
}

// Declare registra offsets tipados em um bloco, inicializados com o valor zero do tipo.
// Redeclarar um offset existente troca seu tipo e zera o valor.
func (m *Map) Declare(block int, offsets []int, kinds []Kind) error {
	if len(offsets) != len(kinds) {
		return fmt.Errorf("bloco %d: %d offsets e %d tipos: %w", block, len(offsets), len(kinds), ErrLengthMismatch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cells, ok := m.blocks[block]
	if !ok {
		cells = make(map[int]*cell, len(offsets))
		m.blocks[block] = cells
	}
	for i, off := range offsets {
		cells[off] = &cell{kind: kinds[i], value: zeroValue(kinds[i])}
	}
	return nil
}

// OnWrite registra um ouvinte de escritas
func (m *Map) OnWrite(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Read retorna o valor armazenado em (block, offset)
func (m *Map) Read(block, offset int) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(block, offset)
}

// ReadAll lê vários endereços em uma única seção crítica
func (m *Map) ReadAll(addrs []Address) ([]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values := make([]interface{}, len(addrs))
	for i, a := range addrs {
		v, err := m.read(a.Block, a.Offset)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// Write grava um valor e notifica os ouvintes
func (m *Map) Write(block, offset int, value interface{}) error {
	return m.Update(func(tx *Tx) error {
		return tx.Write(block, offset, value)
	})
}

// Update executa fn com o mutex adquirido. Se fn retornar erro, todas as escritas
// feitas por ela são desfeitas e nenhum ouvinte é chamado. Caso contrário os
// ouvintes recebem os endereços gravados antes de Update retornar.
func (m *Map) Update(fn func(tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Tx{m: m, record: true}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	if len(tx.changed) > 0 {
		inner := &Tx{m: m}
		for _, l := range m.listeners {
			l(inner, tx.changed)
		}
	}
	return nil
}

// View executa fn com o mutex adquirido, somente para leitura
func (m *Map) View(fn func(tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&Tx{m: m, readOnly: true})
}

func (m *Map) lookup(block, offset int) (*cell, error) {
	cells, ok := m.blocks[block]
	if !ok {
		return nil, fmt.Errorf("bloco %d: %w", block, ErrUnknownAddress)
	}
	c, ok := cells[offset]
	if !ok {
		return nil, fmt.Errorf("endereço %d.%d: %w", block, offset, ErrUnknownAddress)
	}
	return c, nil
}

func (m *Map) read(block, offset int) (interface{}, error) {
	c, err := m.lookup(block, offset)
	if err != nil {
		return nil, err
	}
	return c.value, nil
}

// Tx dá acesso ao mapa dentro de uma seção crítica já adquirida
type Tx struct {
	m        *Map
	record   bool
	readOnly bool
	changed  []Address
	undo     []undoEntry
}

type undoEntry struct {
	cell  *cell
	value interface{}
}

// Read lê um valor
func (tx *Tx) Read(block, offset int) (interface{}, error) {
	return tx.m.read(block, offset)
}

// Kind retorna o tipo declarado de um endereço
func (tx *Tx) Kind(block, offset int) (Kind, error) {
	c, err := tx.m.lookup(block, offset)
	if err != nil {
		return 0, err
	}
	return c.kind, nil
}

// Offsets retorna os offsets declarados de um bloco em ordem crescente
func (tx *Tx) Offsets(block int) ([]int, error) {
	cells, ok := tx.m.blocks[block]
	if !ok {
		return nil, fmt.Errorf("bloco %d: %w", block, ErrUnknownAddress)
	}
	offs := make([]int, 0, len(cells))
	for off := range cells {
		offs = append(offs, off)
	}
	sort.Ints(offs)
	return offs, nil
}

// Write grava um valor se o tipo corresponder ao declarado
func (tx *Tx) Write(block, offset int, value interface{}) error {
	if tx.readOnly {
		return errors.New("transação somente leitura")
	}
	c, err := tx.m.lookup(block, offset)
	if err != nil {
		return err
	}
	if !matches(c.kind, value) {
		return fmt.Errorf("endereço %d.%d espera %s, recebido %T: %w", block, offset, c.kind, value, ErrTypeMismatch)
	}

	if tx.record {
		tx.undo = append(tx.undo, undoEntry{cell: c, value: c.value})
		tx.changed = appendUnique(tx.changed, Address{Block: block, Offset: offset})
	}
	c.value = value
	return nil
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i].cell.value = tx.undo[i].value
	}
	tx.undo = nil
	tx.changed = nil
}

func appendUnique(addrs []Address, a Address) []Address {
	for _, x := range addrs {
		if x == a {
			return addrs
		}
	}
	return append(addrs, a)
}

func zeroValue(k Kind) interface{} {
	switch k {
	case Int:
		return int16(0)
	case Real:
		return float32(0)
	}
	return false
}

func matches(k Kind, value interface{}) bool {
	switch value.(type) {
	case bool:
		return k == Bool
	case int16:
		return k == Int
	case float32:
		return k == Real
	}
	return false
}

// Truthy interpreta um valor armazenado como bit de entrada (diferente de zero é verdadeiro)
func Truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int16:
		return v != 0
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	}
	return false
}

// FromBool converte um bit para o tipo declarado
func FromBool(k Kind, b bool) interface{} {
	switch k {
	case Int:
		if b {
			return int16(1)
		}
		return int16(0)
	case Real:
		if b {
			return float32(1)
		}
		return float32(0)
	}
	return b
}
