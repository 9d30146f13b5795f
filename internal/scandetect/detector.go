// Package scandetect detecta varreduras de portas TCP (estilo nmap -sS)
// contra o host do PLC emulado, contando os SYN recebidos por IP de origem.
package scandetect

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
)

// DefaultThreshold é o número de portas distintas que caracteriza uma varredura
const DefaultThreshold = 100

const (
	flagSYN = 0x02
	flagACK = 0x10
)

var (
	ErrUnsupported  = errors.New("captura de pacotes não suportada neste sistema")
	ErrShortSegment = errors.New("segmento TCP curto demais")
)

// Packet é o resumo de um segmento TCP recebido
type Packet struct {
	Src     string
	DstPort uint16
	Flags   uint8
}

// SYN informa se o segmento é um pedido de conexão (SYN sem ACK)
func (p Packet) SYN() bool {
	return p.Flags&(flagSYN|flagACK) == flagSYN
}

// Source entrega os segmentos TCP observados
type Source interface {
	ReadPacket() (Packet, error)
	Close() error
}

// Reporter recebe os alertas de varredura
type Reporter interface {
	Enqueue(action, msg string) monitorclient.Event
}

// Detector mantém, por IP de origem, as portas que já receberam SYN
type Detector struct {
	threshold int
	reporter  Reporter
	log       zerolog.Logger
	metrics   *metrics.Registry

	mu      sync.Mutex
	ports   map[string]map[uint16]struct{}
	alerted map[string]struct{}
}

// Option configura um Detector
type Option func(*Detector)

// WithThreshold define quantas portas distintas disparam o alerta; valores <= 0 são ignorados
func WithThreshold(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(d *Detector) { d.metrics = r }
}

// New cria o detector
func New(reporter Reporter, opts ...Option) *Detector {
	d := &Detector{
		threshold: DefaultThreshold,
		reporter:  reporter,
		log:       zerolog.Nop(),
		ports:     make(map[string]map[uint16]struct{}),
		alerted:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe contabiliza um segmento e retorna true quando ele dispara o alerta
// da origem. Cada IP gera no máximo um alerta.
func (d *Detector) Observe(p Packet) bool {
	if !p.SYN() {
		return false
	}

	d.mu.Lock()
	if _, ok := d.alerted[p.Src]; ok {
		d.mu.Unlock()
		return false
	}
	seen, ok := d.ports[p.Src]
	if !ok {
		seen = make(map[uint16]struct{})
		d.ports[p.Src] = seen
	}
	seen[p.DstPort] = struct{}{}
	if len(seen) < d.threshold {
		d.mu.Unlock()
		return false
	}
	delete(d.ports, p.Src)
	d.alerted[p.Src] = struct{}{}
	d.mu.Unlock()

	msg := fmt.Sprintf("Nmap scan detected from %s and try scan more than %d ports", p.Src, d.threshold)
	d.log.Warn().Str("origem", p.Src).Int("portas", d.threshold).Msg("Varredura de portas detectada")
	d.metrics.RecordScanAlert()
	if d.reporter != nil {
		d.reporter.Enqueue(monitorclient.ActionAlert, msg)
	}
	return true
}

// Run lê da fonte até o contexto ser cancelado; a fonte é fechada ao sair
func (d *Detector) Run(ctx context.Context, src Source) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		src.Close()
	}()

	d.log.Info().Int("limite", d.threshold).Msg("Detector de varredura iniciado")
	for {
		p, err := src.ReadPacket()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				d.log.Info().Msg("Detector de varredura encerrado")
				return nil
			}
			if errors.Is(err, ErrShortSegment) {
				continue
			}
			return fmt.Errorf("erro ao ler pacotes: %w", err)
		}
		d.Observe(p)
	}
}

// parseTCP extrai porta de destino e flags do início de um segmento TCP
func parseTCP(src string, segment []byte) (Packet, error) {
	if len(segment) < 14 {
		return Packet{}, ErrShortSegment
	}
	return Packet{
		Src:     src,
		DstPort: binary.BigEndian.Uint16(segment[2:4]),
		Flags:   segment[13],
	}, nil
}
