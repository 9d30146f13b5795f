// Package monitorclient entrega os eventos de um agente (PLC ou controlador)
// ao monitor hub via HTTP.
//
// Os eventos ficam em uma fila limitada; quando ela enche, o mais antigo é
// descartado. A entrega é no máximo uma vez: um evento que falha não volta à fila.
package monitorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
)

// Ações aceitas pelo hub
const (
	ActionLogin   = "login"
	ActionNormal  = "normal"
	ActionWarning = "warning"
	ActionAlert   = "alert"
)

// Tipos de agente
const (
	TypePLC        = "plc"
	TypeController = "controller"
)

const (
	// DefaultQueueSize é a capacidade padrão da fila de eventos
	DefaultQueueSize = 10
	// TimeLayout é o formato de data usado no protocolo do hub
	TimeLayout = "2006-01-02 15:04:05"
	// PostPath é a rota de ingestão do hub
	PostPath = "/dataPost"
)

// ErrDeliveryFailure indica que o hub não aceitou ou não recebeu a requisição
var ErrDeliveryFailure = errors.New("falha na entrega ao monitor hub")

// Identity descreve o agente no login
type Identity struct {
	ID       string `json:"ID" validate:"required"`
	IP       string `json:"IP" validate:"required,ip"`
	Type     string `json:"Type" validate:"required,oneof=plc controller"`
	Protocol string `json:"Protocol" validate:"required"`
	LadderID string `json:"LadderID"`
	TargetID string `json:"TargetID,omitempty"`
	TargetIP string `json:"TargetIP,omitempty"`
}

// Event é um relatório de estado
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

// Envelope é o corpo de POST /dataPost
type Envelope struct {
	ID        string          `json:"ID"`
	Action    string          `json:"Action"`
	Timestamp string          `json:"Timestamp"`
	Data      json.RawMessage `json:"Data"`
}

// Config contém as opções do cliente
type Config struct {
	HubURL         string // ex.: http://10.0.0.10:5000
	ReportInterval time.Duration
	QueueSize      int
	Timeout        time.Duration
}

// HubURL monta a URL base do hub a partir de host e porta
func HubURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Client é o cliente de relatórios de um agente
type Client struct {
	cfg      Config
	identity Identity
	http     *http.Client
	log      zerolog.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	mu        sync.Mutex
	queue     []Event
	connected bool
}

// Option configura um Client
type Option func(*Client)

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(c *Client) { c.metrics = r }
}

// WithHTTPClient substitui o cliente HTTP
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New cria o cliente; nada é enviado até Run
func New(cfg Config, identity Identity, opts ...Option) *Client {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		identity: identity,
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      zerolog.Nop(),
		now:      time.Now,
		queue:    make([]Event, 0, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue coloca um evento na fila sem bloquear, descartando o mais antigo se cheia
func (c *Client) Enqueue(action, msg string) Event {
	ev := Event{
		ID:      uuid.NewString(),
		Type:    action,
		Time:    c.now().Format(TimeLayout),
		Message: action + ": " + msg,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) >= c.cfg.QueueSize {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		c.metrics.RecordReport("dropped")
		c.log.Debug().Str("evento", dropped.ID).Msg("Fila cheia, evento mais antigo descartado")
	}
	c.queue = append(c.queue, ev)
	return ev
}

// Pending retorna uma cópia da fila atual
func (c *Client) Pending() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.queue...)
}

// Connected informa se o último login ou envio teve sucesso
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Run executa o laço de envio até o contexto ser cancelado: sem conexão, tenta
// o login; com conexão, envia um evento por intervalo
func (c *Client) Run(ctx context.Context) {
	c.log.Info().Str("hub", c.cfg.HubURL).Dur("intervalo", c.cfg.ReportInterval).Msg("Cliente de relatórios iniciado")
	defer c.log.Info().Msg("Cliente de relatórios encerrado")

	ticker := time.NewTicker(c.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		c.step(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) step(ctx context.Context) {
	if !c.Connected() {
		if err := c.Login(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Login no monitor hub falhou")
		}
		return
	}

	ev, ok := c.dequeue()
	if !ok {
		return
	}
	if err := c.Report(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("evento", ev.ID).Msg("Evento descartado após falha de entrega")
	}
}

func (c *Client) dequeue() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Event{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

// Login registra o agente no hub
func (c *Client) Login(ctx context.Context) error {
	return c.post(ctx, ActionLogin, c.identity)
}

// Report envia um evento já retirado da fila
func (c *Client) Report(ctx context.Context, ev Event) error {
	err := c.post(ctx, ev.Type, ev)
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	c.metrics.RecordReport(status)
	return err
}

func (c *Client) post(ctx context.Context, action string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("erro ao serializar dados: %w", err)
	}
	body, err := json.Marshal(Envelope{
		ID:        c.identity.ID,
		Action:    action,
		Timestamp: c.now().Format(TimeLayout),
		Data:      raw,
	})
	if err != nil {
		return fmt.Errorf("erro ao serializar envelope: %w", err)
	}

	err = c.send(ctx, body)
	c.mu.Lock()
	c.connected = err == nil
	c.mu.Unlock()
	return err
}

func (c *Client) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.HubURL+PostPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("erro ao criar requisição: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", ErrDeliveryFailure, resp.StatusCode)
	}

	var ack struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil || !ack.OK {
		return fmt.Errorf("%w: resposta inválida do hub", ErrDeliveryFailure)
	}
	return nil
}
