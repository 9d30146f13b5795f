// Package s7plc expõe os DBs do PLC emulado via S7comm (ISO-on-TCP, porta 102).
//
// São atendidos o estabelecimento de conexão COTP, a negociação de PDU e as
// funções read var / write var na área DB. Qualquer outro pedido recebe uma
// resposta de erro e a conexão continua aberta.
package s7plc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/guard"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// Protocol é o nome do protocolo nos relatórios e métricas
const Protocol = "s7comm"

// Config contém as opções do listener S7
type Config struct {
	Address     string        // host:porta
	IdleTimeout time.Duration // conexão sem requisições é fechada após esse tempo
	MaxPDU      int
}

// Server é o servidor S7comm do PLC emulado
type Server struct {
	cfg   Config
	mem   *memory.Map
	guard *guard.Guard
	log   zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// NewServer cria o servidor; o listener só é aberto em ListenAndServe
func NewServer(cfg Config, mem *memory.Map, g *guard.Guard, log zerolog.Logger) *Server {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.MaxPDU == 0 {
		cfg.MaxPDU = 480
	}
	return &Server{
		cfg:   cfg,
		mem:   mem,
		guard: g,
		log:   log,
		conns: make(map[net.Conn]struct{}),
		stop:  make(chan struct{}),
	}
}

// ListenAndServe abre o listener e bloqueia até Stop ou cancelamento do
// contexto. Um erro de bind é retornado imediatamente; falhas de accept
// esperam um backoff e o laço continua.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("erro ao escutar em %s: %w", s.cfg.Address, err)
	}
	return s.serve(ctx, l)
}

func (s *Server) serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.log.Info().Str("endereco", l.Addr().String()).Msg("Servidor S7comm iniciado")

	go func() {
		select {
		case <-ctx.Done():
		case <-s.stop:
		}
		s.shutdown()
	}()

	defer s.wg.Wait()

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				s.log.Info().Msg("Servidor S7comm encerrado")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener S7comm fechado: %w", err)
			}
			backoff = nextBackoff(backoff)
			s.log.Warn().Err(err).Dur("espera", backoff).Msg("Erro no accept, tentando novamente")
			select {
			case <-s.stop:
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Stop fecha o listener e todas as conexões abertas
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Addr retorna o endereço em que o servidor escuta (nil antes de ListenAndServe)
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) shutdown() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	ip := access.HostOf(conn.RemoteAddr().String())
	log := s.log.With().Str("ip", ip).Logger()
	log.Debug().Msg("Conexão S7comm aberta")

	for {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		frame, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, errMalformed) {
				log.Warn().Err(err).Msg("Frame TPKT inválido, fechando conexão")
			} else {
				log.Debug().Err(err).Msg("Conexão S7comm encerrada")
			}
			return
		}

		resp, keep := s.handleFrame(frame, ip, log)
		if resp != nil {
			if _, err := conn.Write(resp); err != nil {
				log.Debug().Err(err).Msg("Erro ao responder cliente S7comm")
				return
			}
		}
		if !keep {
			return
		}
	}
}

// handleFrame processa um frame TPKT e indica se a conexão deve continuar
func (s *Server) handleFrame(frame []byte, ip string, log zerolog.Logger) ([]byte, bool) {
	switch cotpType(frame) {
	case cotpConnReq:
		return connConfirm(frame), true
	case cotpDiscReq:
		return nil, false
	case cotpData:
	default:
		log.Warn().Uint8("cotp", cotpType(frame)).Msg("Tipo COTP não suportado")
		return nil, true
	}

	j, err := parseJob(frame)
	if err != nil {
		log.Warn().Err(err).Msg("Requisição S7 rejeitada")
		return ackData(j.pduRef, errClassHeader, errCodeHeader, nil, nil), true
	}
	if j.rosctr != rosctrJob {
		log.Warn().Uint8("rosctr", j.rosctr).Msg("Tipo de PDU S7 não suportado")
		return ackData(j.pduRef, errClassHeader, errCodeHeader, nil, nil), true
	}

	switch j.params[0] {
	case fnSetupComm:
		return s.setupComm(j), true
	case fnReadVar:
		return s.readVar(j, ip, log), true
	case fnWriteVar:
		return s.writeVar(j, ip, log), true
	}

	log.Warn().Uint8("funcao", j.params[0]).Msg("Função S7 não suportada")
	return ackData(j.pduRef, errClassFunction, errCodeFunction, []byte{j.params[0], 0x00}, nil), true
}

func (s *Server) setupComm(j job) []byte {
	pdu := s.cfg.MaxPDU
	if len(j.params) >= 8 {
		if req := int(binary.BigEndian.Uint16(j.params[6:8])); req > 0 && req < pdu {
			pdu = req
		}
	}
	params := []byte{fnSetupComm, 0x00, 0x00, 0x01, 0x00, 0x01, byte(pdu >> 8), byte(pdu)}
	return ackData(j.pduRef, errClassNone, 0x00, params, nil)
}

func (s *Server) readVar(j job, ip string, log zerolog.Logger) []byte {
	items, err := parseItems(j.params)
	if err != nil {
		log.Warn().Err(err).Msg("Leitura S7 malformada")
		return ackData(j.pduRef, errClassFunction, errCodeFunction, []byte{fnReadVar, 0x00}, nil)
	}

	req := guard.Request{Op: access.Read, ClientIP: ip, Block: items[0].db, Offset: items[0].offset, Quantity: len(items)}
	denied := s.guard.Authorize(req)

	data := make([]byte, 0, 64)
	_ = s.mem.View(func(tx *memory.Tx) error {
		for i, it := range items {
			var payload []byte
			err := denied
			if err == nil {
				payload, err = readItem(tx, it)
				s.guard.Record(itemRequest(access.Read, ip, it), "", err)
			}
			data = appendReadItem(data, returnCode(err), it, payload, i == len(items)-1)
			if err != nil {
				log.Debug().Err(err).Str("variavel", describe(it)).Msg("Falha na leitura S7")
			}
		}
		return nil
	})

	return ackData(j.pduRef, errClassNone, 0x00, []byte{fnReadVar, byte(len(items))}, data)
}

func readItem(tx *memory.Tx, it item) ([]byte, error) {
	if it.area != areaDB {
		return nil, errAreaNotDB
	}
	size, ok := it.byteLen()
	if !ok {
		return nil, errNotSupported
	}
	if it.ts == tsBit {
		return readBit(tx, it.db, it.offset, it.bit)
	}
	return readImage(tx, it.db, it.offset, size)
}

func (s *Server) writeVar(j job, ip string, log zerolog.Logger) []byte {
	items, err := parseItems(j.params)
	var values []writeValue
	if err == nil {
		values, err = parseWriteData(j.data, len(items))
	}
	if err != nil {
		log.Warn().Err(err).Msg("Escrita S7 malformada")
		return ackData(j.pduRef, errClassFunction, errCodeFunction, []byte{fnWriteVar, 0x00}, nil)
	}

	req := guard.Request{Op: access.Write, ClientIP: ip, Block: items[0].db, Offset: items[0].offset, Quantity: len(items)}
	denied := s.guard.Authorize(req)

	codes := make([]byte, len(items))
	for i, it := range items {
		err := denied
		if err == nil {
			err = s.writeItem(it, values[i])
			s.guard.Record(itemRequest(access.Write, ip, it), fmt.Sprintf("% x", values[i].data), err)
		}
		codes[i] = returnCode(err)
		if err != nil {
			log.Debug().Err(err).Str("variavel", describe(it)).Msg("Falha na escrita S7")
		}
	}

	return ackData(j.pduRef, errClassNone, 0x00, []byte{fnWriteVar, byte(len(items))}, codes)
}

// writeItem aplica um item em sua própria transação; a lógica ladder roda
// dentro dela antes da resposta
func (s *Server) writeItem(it item, v writeValue) error {
	if v.rc != rcSuccess {
		return &itemError{rc: v.rc, msg: "dado de escrita inválido"}
	}
	if it.area != areaDB {
		return errAreaNotDB
	}
	size, ok := it.byteLen()
	if !ok {
		return errNotSupported
	}
	if len(v.data) != size {
		return errPartialCell
	}
	return s.mem.Update(func(tx *memory.Tx) error {
		if it.ts == tsBit {
			return writeBit(tx, it.db, it.offset, it.bit, v.data)
		}
		return writeImage(tx, it.db, it.offset, v.data)
	})
}

func itemRequest(op access.Operation, ip string, it item) guard.Request {
	return guard.Request{Op: op, ClientIP: ip, Block: it.db, Offset: it.offset, Quantity: it.count}
}
