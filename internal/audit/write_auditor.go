// Package audit registra a atividade recebida pelos servidores de protocolo
// (leituras, escritas e acessos negados) em lotes assíncronos.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status de uma entrada de auditoria
const (
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
	StatusRejected = "rejected"
)

var ErrQueueFull = errors.New("fila de auditoria cheia")

// Entry representa uma requisição de protocolo auditada
type Entry struct {
	ID        int64     `json:"id" db:"id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Protocol  string    `json:"protocol" db:"protocol"`
	ClientIP  string    `json:"client_ip" db:"client_ip"`
	Operation string    `json:"operation" db:"operation"`
	Block     int       `json:"block" db:"block"`
	Offset    int       `json:"offset" db:"offset"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Value     string    `json:"value" db:"value"`
	Status    string    `json:"status" db:"status"`
	Details   string    `json:"details" db:"details"`
}

// Store persiste lotes de entradas
type Store interface {
	SaveBatch(ctx context.Context, batch []Entry) error
}

// Auditor é o que os servidores de protocolo usam para registrar requisições
type Auditor interface {
	LogEntry(entry Entry) error
}

// Nop descarta todas as entradas
type Nop struct{}

// LogEntry implementa Auditor
func (Nop) LogEntry(Entry) error { return nil }

// WriteAuditor enfileira entradas e as grava em lotes no Store
type WriteAuditor struct {
	store        Store
	queue        chan Entry
	batchSize    int
	flushTimeout time.Duration
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	log          zerolog.Logger
}

// Option configura um WriteAuditor
type Option func(*WriteAuditor)

// WithBatchSize define o tamanho máximo do lote
func WithBatchSize(n int) Option {
	return func(wa *WriteAuditor) { wa.batchSize = n }
}

// WithFlushTimeout define o intervalo máximo entre gravações
func WithFlushTimeout(d time.Duration) Option {
	return func(wa *WriteAuditor) { wa.flushTimeout = d }
}

// WithQueueSize define a capacidade da fila
func WithQueueSize(n int) Option {
	return func(wa *WriteAuditor) { wa.queue = make(chan Entry, n) }
}

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(wa *WriteAuditor) { wa.log = l }
}

// NewWriteAuditor cria o auditor e inicia o processamento da fila
func NewWriteAuditor(ctx context.Context, store Store, opts ...Option) *WriteAuditor {
	auditCtx, cancel := context.WithCancel(ctx)

	wa := &WriteAuditor{
		store:        store,
		queue:        make(chan Entry, 1000),
		batchSize:    100,
		flushTimeout: 5 * time.Second,
		ctx:          auditCtx,
		cancel:       cancel,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(wa)
	}

	wa.wg.Add(1)
	go wa.processQueue()

	return wa
}

// LogEntry enfileira uma entrada sem bloquear; com a fila cheia a entrada é descartada
func (wa *WriteAuditor) LogEntry(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Operation == "" {
		return fmt.Errorf("operação de auditoria não pode ser vazia")
	}

	select {
	case wa.queue <- entry:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close encerra o auditor gravando as entradas pendentes
func (wa *WriteAuditor) Close() error {
	wa.cancel()

	waitChan := make(chan struct{})
	go func() {
		wa.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout ao fechar auditor: entradas pendentes não processadas")
	}
}

func (wa *WriteAuditor) processQueue() {
	defer wa.wg.Done()

	batch := make([]Entry, 0, wa.batchSize)
	ticker := time.NewTicker(wa.flushTimeout)
	defer ticker.Stop()

	flush := func(reason string) {
		if len(batch) == 0 {
			return
		}
		if err := wa.saveBatch(batch); err != nil {
			wa.log.Error().Err(err).Str("motivo", reason).Int("entradas", len(batch)).Msg("Erro ao salvar lote de auditoria")
		}
		batch = make([]Entry, 0, wa.batchSize)
	}

	for {
		select {
		case <-wa.ctx.Done():
			// esvazia o que já está na fila antes de sair
			for {
				select {
				case entry := <-wa.queue:
					batch = append(batch, entry)
				default:
					flush("encerramento")
					return
				}
			}

		case entry := <-wa.queue:
			batch = append(batch, entry)
			if len(batch) >= wa.batchSize {
				flush("lote cheio")
			}

		case <-ticker.C:
			flush("timeout")
		}
	}
}

func (wa *WriteAuditor) saveBatch(batch []Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wa.store.SaveBatch(ctx, batch); err != nil {
		return err
	}
	wa.log.Debug().Int("entradas", len(batch)).Msg("Lote de auditoria salvo")
	return nil
}
