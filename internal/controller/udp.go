package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// StateCommand é o único comando aceito pelo serviço UDP
const StateCommand = "getstate"

// StateSource fornece o estado consultado via UDP
type StateSource interface {
	Connected() bool
	Last() *Result
}

// StateService responde consultas de estado do controlador via UDP
type StateService struct {
	addr      string
	source    StateSource
	errorFlag string
	log       zerolog.Logger

	mu   sync.Mutex
	conn net.PacketConn
}

// NewStateService cria o serviço; errorFlag é devolvido quando o último ciclo falhou
func NewStateService(addr string, source StateSource, errorFlag string, log zerolog.Logger) *StateService {
	return &StateService{addr: addr, source: source, errorFlag: errorFlag, log: log}
}

// Addr retorna o endereço local (nil antes de ListenAndServe)
func (s *StateService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// ListenAndServe atende requisições até o contexto ser cancelado ou Stop
func (s *StateService) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("erro ao escutar UDP em %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Str("endereco", conn.LocalAddr().String()).Msg("Serviço UDP de estado iniciado")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	buf := make([]byte, 1024)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info().Msg("Serviço UDP de estado encerrado")
				return nil
			}
			s.log.Warn().Err(err).Msg("Erro de leitura UDP")
			continue
		}

		reply := s.Handle(string(buf[:n]))
		if _, err := conn.WriteTo([]byte(reply), peer); err != nil {
			s.log.Warn().Err(err).Str("destino", peer.String()).Msg("Erro ao responder consulta UDP")
		}
	}
}

// Stop fecha o socket, desbloqueando ListenAndServe
func (s *StateService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// Handle monta a resposta para uma mensagem recebida
func (s *StateService) Handle(msg string) string {
	msg = strings.TrimSpace(msg)
	if !strings.EqualFold(msg, StateCommand) {
		return "Error: Input request invalid: " + msg
	}
	if !s.source.Connected() {
		return "state: PLC rejected connection."
	}

	last := s.source.Last()
	if last == nil || last.Outcome != OutcomeNormal {
		return "state:error;" + s.errorFlag
	}

	bits := make([]string, len(last.Actual))
	for i, b := range last.Actual {
		bits[i] = "0"
		if b {
			bits[i] = "1"
		}
	}
	return "state:normal;" + strings.Join(bits, ";")
}
