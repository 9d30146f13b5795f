package ladder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

func bits(v ...int) []bool {
	out := make([]bool, len(v))
	for i, b := range v {
		out[i] = b == 1
	}
	return out
}

func allVectors() [][]bool {
	var vectors [][]bool
	for n := 0; n < 1<<InputCount; n++ {
		v := make([]bool, InputCount)
		for i := range v {
			v[i] = n&(1<<i) != 0
		}
		vectors = append(vectors, v)
	}
	return vectors
}

func TestModbusTableKnownVector(t *testing.T) {
	table := MustTable(ModbusLadderID, ModbusRungs)

	out, err := table.Evaluate(bits(1, 0, 1, 1, 1, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true, false, false, true, false}, out)
}

func TestS7TableKnownVector(t *testing.T) {
	table := MustTable(S7LadderID, S7Rungs)

	// c0=i0&i1 c1=!i2 c2=i3 c3=i0|i6 c4=!(i4|i5) c5=i5|i6 c6=i3|!i7 c7=!i5
	out, err := table.Evaluate(bits(1, 1, 0, 0, 0, 0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, true, true, false, false, true}, out)
}

func TestEvaluateDeterministic(t *testing.T) {
	for _, table := range []*Table{MustTable(ModbusLadderID, ModbusRungs), MustTable(S7LadderID, S7Rungs)} {
		for _, v := range allVectors() {
			first, err := table.Evaluate(v)
			require.NoError(t, err)
			second, err := table.Evaluate(v)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		}
	}
}

func TestEvaluateInvalidLength(t *testing.T) {
	table := MustTable(ModbusLadderID, ModbusRungs)

	for _, n := range []int{0, 7, 9} {
		out, err := table.Evaluate(make([]bool, n))
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, ErrInvalidInputLength))
	}
}

func TestNewTableRejectsBadRungs(t *testing.T) {
	_, err := NewTable("curta", ModbusRungs[:3])
	assert.True(t, errors.Is(err, ErrInvalidRung))

	specs := append([]RungSpec(nil), ModbusRungs...)
	specs[2] = RungSpec{Name: "c2", Expr: "i2 &&"}
	_, err = NewTable("quebrada", specs)
	assert.True(t, errors.Is(err, ErrInvalidRung))

	specs[2] = RungSpec{Name: "c2", Expr: "i9"}
	_, err = NewTable("fora", specs)
	assert.True(t, errors.Is(err, ErrInvalidRung))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{ModbusLadderID, S7LadderID}, r.IDs())

	_, err := r.Lookup("nenhuma")
	assert.True(t, errors.Is(err, ErrUnknownLadder))

	identity := []RungSpec{
		{Name: "c0", Expr: "i0"}, {Name: "c1", Expr: "i1"}, {Name: "c2", Expr: "i2"}, {Name: "c3", Expr: "i3"},
		{Name: "c4", Expr: "i4"}, {Name: "c5", Expr: "i5"}, {Name: "c6", Expr: "i6"}, {Name: "c7", Expr: "i7"},
	}
	require.NoError(t, r.RegisterSpecs("identidade", identity))
	l, err := r.Lookup("identidade")
	require.NoError(t, err)

	in := bits(1, 0, 0, 1, 1, 0, 1, 0)
	out, err := l.Evaluate(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEngineBindModbus(t *testing.T) {
	m := memory.New()
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	require.NoError(t, layout.Declare(m))

	engine, err := NewEngine(MustTable(ModbusLadderID, ModbusRungs), layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(m))

	in := []int16{1, 0, 1, 1, 1, 0, 1, 1}
	require.NoError(t, m.Update(func(tx *memory.Tx) error {
		for i, v := range in {
			if err := tx.Write(memory.HoldingRegisters, i, v); err != nil {
				return err
			}
		}
		return nil
	}))

	values, err := m.ReadAll(layout.Outputs)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true, true, true, true, false, false, true, false}, values)
}

func TestEngineBindS7EachWrite(t *testing.T) {
	m := memory.New()
	layout := BlockLayout([2]int{1, 2}, [2]int{3, 4}, []int{0, 2, 4, 6}, memory.Bool)
	require.NoError(t, layout.Declare(m))

	table := MustTable(S7LadderID, S7Rungs)
	engine, err := NewEngine(table, layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(m))

	in := bits(0, 1, 1, 0, 1, 0, 0, 1)
	for i, a := range layout.Inputs {
		require.NoError(t, m.Write(a.Block, a.Offset, in[i]))
	}

	expected, err := table.Evaluate(in)
	require.NoError(t, err)
	values, err := m.ReadAll(layout.Outputs)
	require.NoError(t, err)
	for i := range expected {
		assert.Equal(t, expected[i], values[i], "saída %d", i)
	}
}

func TestEngineIgnoresNonInputWrites(t *testing.T) {
	m := memory.New()
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	require.NoError(t, layout.Declare(m))
	engine, err := NewEngine(MustTable(ModbusLadderID, ModbusRungs), layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(m))

	// escrever direto numa saída não reavalia a lógica
	require.NoError(t, m.Write(memory.Coils, 4, false))
	v, err := m.Read(memory.Coils, 4)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEngineBindScansInitialState(t *testing.T) {
	m := memory.New()
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	require.NoError(t, layout.Declare(m))
	engine, err := NewEngine(MustTable(ModbusLadderID, ModbusRungs), layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(m))

	// entradas zeradas: c1, c3, c4 e c6 ligadas
	values, err := m.ReadAll(layout.Outputs)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{false, true, false, true, true, false, true, false}, values)
}

func TestEngineRescansOnUnchangedInput(t *testing.T) {
	m := memory.New()
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	require.NoError(t, layout.Declare(m))
	engine, err := NewEngine(MustTable(ModbusLadderID, ModbusRungs), layout)
	require.NoError(t, err)
	require.NoError(t, engine.Bind(m))

	require.NoError(t, m.Write(memory.HoldingRegisters, 1, int16(1)))
	v, _ := m.Read(memory.Coils, 1)
	require.Equal(t, false, v)

	// bobina adulterada volta ao valor da lógica quando a mesma entrada é regravada
	require.NoError(t, m.Write(memory.Coils, 1, true))
	require.NoError(t, m.Write(memory.HoldingRegisters, 1, int16(1)))
	v, _ = m.Read(memory.Coils, 1)
	assert.Equal(t, false, v)

	// regravar zero numa entrada já zerada também executa a lógica
	require.NoError(t, m.Write(memory.Coils, 3, false))
	require.NoError(t, m.Write(memory.HoldingRegisters, 0, int16(0)))
	v, _ = m.Read(memory.Coils, 3)
	assert.Equal(t, true, v)
}

type shortLogic struct{}

func (shortLogic) ID() string { return "curta" }

func (shortLogic) Evaluate(inputs []bool) ([]bool, error) {
	return inputs[:4], nil
}

func TestNewEngineRejectsShortLogic(t *testing.T) {
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	_, err := NewEngine(shortLogic{}, layout)
	assert.ErrorIs(t, err, ErrInvalidRung)
}

func TestNewEngineValidatesLayout(t *testing.T) {
	layout := FlatLayout(memory.HoldingRegisters, memory.Coils, memory.Int, memory.Bool)
	layout.Inputs = layout.Inputs[:6]
	_, err := NewEngine(MustTable(ModbusLadderID, ModbusRungs), layout)
	assert.True(t, errors.Is(err, ErrInvalidInputLength))
}

func TestProtocolLayout(t *testing.T) {
	l, id, err := ProtocolLayout("modbus")
	require.NoError(t, err)
	assert.Equal(t, ModbusLadderID, id)
	assert.Equal(t, memory.Address{Block: memory.HoldingRegisters, Offset: 7}, l.Inputs[7])
	assert.Equal(t, memory.Int, l.InputKind)

	l, id, err = ProtocolLayout("s7comm")
	require.NoError(t, err)
	assert.Equal(t, S7LadderID, id)
	assert.Equal(t, memory.Address{Block: 2, Offset: 6}, l.Inputs[7])
	assert.Equal(t, memory.Address{Block: 3, Offset: 0}, l.Outputs[0])

	_, _, err = ProtocolLayout("bacnet")
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}
