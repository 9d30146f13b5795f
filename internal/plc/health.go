package plc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
)

// BreakerState define os possíveis estados do circuit breaker
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"    // funcionamento normal
	StateOpen     BreakerState = "OPEN"      // interrompido devido a falhas
	StateHalfOpen BreakerState = "HALF_OPEN" // testando recuperação
)

// ErrCircuitOpen é retornado sem tocar a rede enquanto o circuito está aberto
var ErrCircuitOpen = errors.New("circuit breaker do PLC está aberto")

// Breaker evita martelar um PLC que parou de responder
type Breaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	log              zerolog.Logger
	now              func() time.Time
	onStateChange    func(from, to BreakerState)

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastStateChange time.Time
	probing         bool
}

// BreakerOption configura um Breaker
type BreakerOption func(*Breaker)

// WithFailureThreshold define quantas falhas seguidas abrem o circuito
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithResetTimeout define quanto tempo o circuito fica aberto antes do teste
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithBreakerLogger define o logger
func WithBreakerLogger(l zerolog.Logger) BreakerOption {
	return func(b *Breaker) { b.log = l }
}

// WithOnStateChange registra um callback para mudanças de estado
func WithOnStateChange(fn func(from, to BreakerState)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = fn }
}

func withClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker cria um circuit breaker fechado
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 3,
		resetTimeout:     10 * time.Second,
		log:              zerolog.Nop(),
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastStateChange = b.now()
	return b
}

// State retorna o estado atual
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute roda fn se o circuito permitir; em HALF_OPEN apenas uma chamada passa
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastStateChange) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.changeState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil {
		b.failureCount++
		if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
			b.changeState(StateOpen)
		}
		return err
	}
	if b.state == StateHalfOpen {
		b.changeState(StateClosed)
	}
	b.failureCount = 0
	return nil
}

func (b *Breaker) changeState(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.lastStateChange = b.now()
	if to == StateClosed {
		b.failureCount = 0
	}

	b.log.Info().Str("breaker", b.name).Str("de", string(from)).Str("para", string(to)).Msg("Circuit breaker mudou de estado")
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// Monitored envolve um Target com o breaker: qualquer falha derruba o transporte,
// que é reaberto na próxima chamada permitida
type Monitored struct {
	target  Target
	breaker *Breaker

	mu    sync.Mutex
	stale bool
}

// NewMonitored cria o wrapper; o alvo é considerado desconectado até Connect
func NewMonitored(t Target, b *Breaker) *Monitored {
	return &Monitored{target: t, breaker: b, stale: true}
}

// Breaker retorna o breaker usado
func (m *Monitored) Breaker() *Breaker {
	return m.breaker
}

// Connect conecta o alvo passando pelo breaker
func (m *Monitored) Connect() error {
	return m.wrap(m.breaker.Execute(m.reconnect))
}

// WriteBool grava via alvo, reconectando se necessário
func (m *Monitored) WriteBool(addr memory.Address, value bool) error {
	return m.wrap(m.breaker.Execute(func() error {
		if err := m.ensure(); err != nil {
			return err
		}
		return m.fail(m.target.WriteBool(addr, value))
	}))
}

// ReadBools lê via alvo, reconectando se necessário
func (m *Monitored) ReadBools(addrs []memory.Address) ([]bool, error) {
	var out []bool
	err := m.breaker.Execute(func() error {
		if err := m.ensure(); err != nil {
			return err
		}
		var err error
		out, err = m.target.ReadBools(addrs)
		return m.fail(err)
	})
	if err != nil {
		return nil, m.wrap(err)
	}
	return out, nil
}

// Close fecha o alvo
func (m *Monitored) Close() error {
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
	return m.target.Close()
}

func (m *Monitored) reconnect() error {
	if err := m.target.Connect(); err != nil {
		return err
	}
	m.mu.Lock()
	m.stale = false
	m.mu.Unlock()
	return nil
}

func (m *Monitored) ensure() error {
	m.mu.Lock()
	stale := m.stale
	m.mu.Unlock()
	if !stale {
		return nil
	}
	return m.reconnect()
}

func (m *Monitored) fail(err error) error {
	if err != nil && errors.Is(err, ErrConnectionLost) {
		m.mu.Lock()
		m.stale = true
		m.mu.Unlock()
		m.target.Close()
	}
	return err
}

// wrap garante que falhas de saúde sejam vistas como ErrConnectionLost
func (m *Monitored) wrap(err error) error {
	if err == nil || errors.Is(err, ErrConnectionLost) {
		return err
	}
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, ErrConnectionLost)
	}
	return err
}
