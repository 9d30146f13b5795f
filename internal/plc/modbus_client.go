package plc

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/simonvetter/modbus"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// ModbusClient acessa o alvo via Modbus-TCP. Os blocos seguem a numeração
// de memory (Coils, DiscreteInputs, InputRegisters, HoldingRegisters).
type ModbusClient struct {
	cfg TargetConfig

	mu     sync.Mutex
	client *modbus.ModbusClient
}

// NewModbusClient cria o cliente sem conectar
func NewModbusClient(cfg TargetConfig) *ModbusClient {
	if cfg.Port == 0 {
		cfg.Port = 502
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = 1
	}
	return &ModbusClient{cfg: cfg}
}

// Connect abre a conexão TCP com o alvo
func (c *ModbusClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     "tcp://" + net.JoinHostPort(c.cfg.IP, strconv.Itoa(c.cfg.Port)),
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configuração Modbus inválida: %w", err)
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("falha ao conectar ao PLC %s:%d: %v: %w", c.cfg.IP, c.cfg.Port, err, ErrConnectionLost)
	}
	if err := client.SetUnitId(c.cfg.UnitID); err != nil {
		client.Close()
		return fmt.Errorf("unit id %d: %w", c.cfg.UnitID, err)
	}
	c.client = client
	return nil
}

// WriteBool grava uma bobina ou um registrador holding (0/1)
func (c *ModbusClient) WriteBool(addr memory.Address, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return ErrConnectionLost
	}

	var err error
	switch addr.Block {
	case memory.Coils:
		err = c.client.WriteCoil(uint16(addr.Offset), value)
	case memory.HoldingRegisters:
		var v uint16
		if value {
			v = 1
		}
		err = c.client.WriteRegister(uint16(addr.Offset), v)
	default:
		return fmt.Errorf("bloco %d não é gravável via Modbus: %w", addr.Block, memory.ErrUnknownAddress)
	}
	if err != nil {
		return fmt.Errorf("erro ao gravar %s: %v: %w", addr, err, ErrConnectionLost)
	}
	return nil
}

// ReadBools lê cada tabela envolvida em uma única requisição
func (c *ModbusClient) ReadBools(addrs []memory.Address) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrConnectionLost
	}

	groups := groupReads(addrs)
	values := make(map[int][]bool, len(groups))
	for _, g := range groups {
		bits, err := c.readGroup(g)
		if err != nil {
			return nil, err
		}
		values[g.block] = bits
	}
	return pick(addrs, groups, values), nil
}

func (c *ModbusClient) readGroup(g readGroup) ([]bool, error) {
	addr, qty := uint16(g.start), uint16(g.count)

	var (
		bits []bool
		regs []uint16
		err  error
	)
	switch g.block {
	case memory.Coils:
		bits, err = c.client.ReadCoils(addr, qty)
	case memory.DiscreteInputs:
		bits, err = c.client.ReadDiscreteInputs(addr, qty)
	case memory.HoldingRegisters:
		regs, err = c.client.ReadRegisters(addr, qty, modbus.HOLDING_REGISTER)
	case memory.InputRegisters:
		regs, err = c.client.ReadRegisters(addr, qty, modbus.INPUT_REGISTER)
	default:
		return nil, fmt.Errorf("bloco %d: %w", g.block, memory.ErrUnknownAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao ler bloco %d a partir de %d: %v: %w", g.block, g.start, err, ErrConnectionLost)
	}

	if regs != nil {
		bits = make([]bool, len(regs))
		for i, r := range regs {
			bits[i] = r != 0
		}
	}
	if len(bits) < g.count {
		return nil, fmt.Errorf("resposta com %d valores, esperado %d: %w", len(bits), g.count, ErrConnectionLost)
	}
	return bits, nil
}

// Close fecha a conexão com o PLC
func (c *ModbusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
