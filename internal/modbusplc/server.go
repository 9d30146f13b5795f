// Package modbusplc expõe o mapa de memória do PLC emulado via Modbus-TCP.
//
// Os registradores holding (bloco memory.HoldingRegisters) e as bobinas
// (bloco memory.Coils) são servidos a partir do memory.Map; as demais tabelas
// só respondem se o bloco correspondente tiver sido declarado.
package modbusplc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/simonvetter/modbus"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/guard"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// Protocol é o nome do protocolo nos relatórios e métricas
const Protocol = "modbus"

// Config contém as opções do listener Modbus
type Config struct {
	Address    string        // host:porta
	Timeout    time.Duration // inatividade antes de fechar a conexão do cliente
	MaxClients uint
}

// Server é o servidor Modbus-TCP do PLC emulado
type Server struct {
	cfg   Config
	mem   *memory.Map
	guard *guard.Guard
	log   zerolog.Logger

	mu       sync.Mutex
	srv      *modbus.ModbusServer
	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer cria o servidor; o listener só é aberto em ListenAndServe
func NewServer(cfg Config, mem *memory.Map, g *guard.Guard, log zerolog.Logger) *Server {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 10
	}
	return &Server{
		cfg:   cfg,
		mem:   mem,
		guard: g,
		log:   log,
		stop:  make(chan struct{}),
	}
}

// ListenAndServe abre o listener e bloqueia até Stop ou cancelamento do contexto.
// Um erro de bind é retornado imediatamente.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        "tcp://" + s.cfg.Address,
		Timeout:    s.cfg.Timeout,
		MaxClients: s.cfg.MaxClients,
	}, s)
	if err != nil {
		return fmt.Errorf("erro ao criar servidor Modbus: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("erro ao escutar em %s: %w", s.cfg.Address, err)
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.log.Info().Str("endereco", s.cfg.Address).Msg("Servidor Modbus iniciado")

	select {
	case <-ctx.Done():
	case <-s.stop:
	}

	if err := srv.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Erro ao parar servidor Modbus")
	}
	s.log.Info().Msg("Servidor Modbus encerrado")
	return nil
}

// Stop desbloqueia ListenAndServe
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// HandleCoils atende leitura (FC01) e escrita (FC05/FC15) de bobinas
func (s *Server) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return s.handleBits(memory.Coils, req.ClientAddr, req.Addr, req.Quantity, req.IsWrite, req.Args)
}

// HandleDiscreteInputs atende leitura de entradas discretas (FC02)
func (s *Server) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return s.handleBits(memory.DiscreteInputs, req.ClientAddr, req.Addr, req.Quantity, false, nil)
}

// HandleHoldingRegisters atende leitura (FC03) e escrita (FC06/FC16) de registradores holding
func (s *Server) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return s.handleRegisters(memory.HoldingRegisters, req.ClientAddr, req.Addr, req.Quantity, req.IsWrite, req.Args)
}

// HandleInputRegisters atende leitura de registradores de entrada (FC04)
func (s *Server) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return s.handleRegisters(memory.InputRegisters, req.ClientAddr, req.Addr, req.Quantity, false, nil)
}

func (s *Server) handleBits(block int, clientAddr string, addr, quantity uint16, isWrite bool, args []bool) ([]bool, error) {
	req := newRequest(block, clientAddr, addr, quantity, isWrite)
	if err := s.guard.Authorize(req); err != nil {
		return nil, toModbusError(err)
	}

	var result []bool
	err := s.mem.Update(func(tx *memory.Tx) error {
		for i := 0; i < int(quantity); i++ {
			offset := int(addr) + i
			kind, err := tx.Kind(block, offset)
			if err != nil {
				return err
			}
			if isWrite {
				if i >= len(args) {
					return fmt.Errorf("faltam valores na escrita: %w", memory.ErrTypeMismatch)
				}
				if err := tx.Write(block, offset, memory.FromBool(kind, args[i])); err != nil {
					return err
				}
				continue
			}
			v, err := tx.Read(block, offset)
			if err != nil {
				return err
			}
			result = append(result, memory.Truthy(v))
		}
		return nil
	})

	s.finish(req, args, err)
	if err != nil {
		return nil, toModbusError(err)
	}
	return result, nil
}

func (s *Server) handleRegisters(block int, clientAddr string, addr, quantity uint16, isWrite bool, args []uint16) ([]uint16, error) {
	req := newRequest(block, clientAddr, addr, quantity, isWrite)
	if err := s.guard.Authorize(req); err != nil {
		return nil, toModbusError(err)
	}

	var result []uint16
	err := s.mem.Update(func(tx *memory.Tx) error {
		for i := 0; i < int(quantity); i++ {
			offset := int(addr) + i
			kind, err := tx.Kind(block, offset)
			if err != nil {
				return err
			}
			if isWrite {
				if i >= len(args) {
					return fmt.Errorf("faltam valores na escrita: %w", memory.ErrTypeMismatch)
				}
				if err := tx.Write(block, offset, fromRegister(kind, args[i])); err != nil {
					return err
				}
				continue
			}
			v, err := tx.Read(block, offset)
			if err != nil {
				return err
			}
			result = append(result, toRegister(v))
		}
		return nil
	})

	s.finish(req, args, err)
	if err != nil {
		return nil, toModbusError(err)
	}
	return result, nil
}

func (s *Server) finish(req guard.Request, args interface{}, err error) {
	value := ""
	if req.Op == access.Write {
		value = guard.FormatValues(args)
	}
	s.guard.Record(req, value, err)

	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("ip", req.ClientIP).
		Str("operacao", string(req.Op)).
		Int("bloco", req.Block).
		Int("endereco", req.Offset).
		Int("quantidade", req.Quantity).
		Msg("Requisição Modbus")
}

func newRequest(block int, clientAddr string, addr, quantity uint16, isWrite bool) guard.Request {
	op := access.Read
	if isWrite {
		op = access.Write
	}
	return guard.Request{
		Op:       op,
		ClientIP: access.HostOf(clientAddr),
		Block:    block,
		Offset:   int(addr),
		Quantity: int(quantity),
	}
}

// fromRegister converte o valor de 16 bits do protocolo para o tipo declarado
func fromRegister(kind memory.Kind, v uint16) interface{} {
	switch kind {
	case memory.Bool:
		return v != 0
	case memory.Real:
		return float32(int16(v))
	}
	return int16(v)
}

func toRegister(v interface{}) uint16 {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int16:
		return uint16(x)
	case float32:
		if math.IsNaN(float64(x)) {
			return 0
		}
		return uint16(int16(x))
	}
	return 0
}

// toModbusError traduz erros internos nas exceções do protocolo
func toModbusError(err error) error {
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		return modbus.ErrIllegalFunction
	case errors.Is(err, memory.ErrUnknownAddress):
		return modbus.ErrIllegalDataAddress
	case errors.Is(err, memory.ErrTypeMismatch):
		return modbus.ErrIllegalDataValue
	}
	return modbus.ErrServerDeviceFailure
}
