// Package controller implementa o controlador de verificação: ele exercita o
// PLC alvo com entradas aleatórias e compara as saídas com a sua própria cópia
// da lógica ladder.
package controller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/ladder"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/plc"
)

// Mensagens enviadas ao hub ao fim de cada ciclo
const (
	MsgLostConnection = "lost connection to target PLC"
	MsgMismatch       = "PLC output not match with expected"
	MsgNormal         = "PLC control loop normal"
)

// Outcome é o resultado de um ciclo de verificação
type Outcome string

const (
	OutcomeNormal   Outcome = "normal"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeLost     Outcome = "lost"
)

// Reporter recebe os eventos do controlador
type Reporter interface {
	Enqueue(action, msg string) monitorclient.Event
}

// Config contém os tempos do laço de verificação
type Config struct {
	PollInterval  time.Duration // espera entre tentativas de conexão
	CycleInterval time.Duration // espera antes de cada ciclo
	WriteDelay    time.Duration // espera entre escritas de entrada
	SettleDelay   time.Duration // espera antes de ler as saídas
}

// DefaultConfig retorna os tempos padrão
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		CycleInterval: 5 * time.Second,
		WriteDelay:    100 * time.Millisecond,
		SettleDelay:   time.Second,
	}
}

// Result descreve o último ciclo concluído
type Result struct {
	Outcome  Outcome
	Inputs   []bool
	Expected []bool
	Actual   []bool
	At       time.Time
}

// Verifier é o controlador de verificação de um PLC alvo
type Verifier struct {
	cfg      Config
	target   plc.Target
	engine   *ladder.Engine
	reporter Reporter
	log      zerolog.Logger
	metrics  *metrics.Registry
	rand     *rand.Rand

	onConnected func()

	mu        sync.RWMutex
	connected bool
	last      *Result
}

// Option configura um Verifier
type Option func(*Verifier)

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(v *Verifier) { v.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(v *Verifier) { v.metrics = r }
}

// WithSeed fixa a semente do gerador de entradas
func WithSeed(seed int64) Option {
	return func(v *Verifier) { v.rand = rand.New(rand.NewSource(seed)) }
}

// OnConnected é chamado uma vez, quando a primeira conexão com o alvo é estabelecida
func OnConnected(fn func()) Option {
	return func(v *Verifier) { v.onConnected = fn }
}

// NewVerifier cria o controlador; engine é a cópia local da lógica do alvo
func NewVerifier(cfg Config, target plc.Target, engine *ladder.Engine, reporter Reporter, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:      cfg,
		target:   target,
		engine:   engine,
		reporter: reporter,
		log:      zerolog.Nop(),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Connected informa se o alvo respondeu no último contato
func (v *Verifier) Connected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

// Last retorna o último ciclo concluído (nil antes do primeiro)
func (v *Verifier) Last() *Result {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// Connect tenta conectar ao alvo a cada PollInterval até conseguir; só
// desiste com o cancelamento do contexto
func (v *Verifier) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := v.target.Connect()
		if err == nil {
			v.setConnected(true)
			v.log.Info().Int("tentativas", attempt).Msg("Conectado ao PLC alvo")
			return nil
		}
		v.log.Warn().Err(err).Int("tentativa", attempt).Msg("Tentando conectar ao PLC alvo")

		if err := sleep(ctx, v.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// Run conecta ao alvo e executa ciclos até o contexto ser cancelado
func (v *Verifier) Run(ctx context.Context) error {
	if err := v.Connect(ctx); err != nil {
		return err
	}
	if v.onConnected != nil {
		v.onConnected()
	}

	v.log.Info().Str("ladder", v.engine.ID()).Dur("intervalo", v.cfg.CycleInterval).Msg("Laço de verificação iniciado")
	defer v.log.Info().Msg("Laço de verificação encerrado")

	for {
		if err := sleep(ctx, v.cfg.CycleInterval); err != nil {
			return nil
		}
		if _, err := v.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			v.log.Error().Err(err).Msg("Ciclo de verificação falhou")
		}
	}
}

// Cycle executa um ciclo completo e reporta o resultado. O erro só é
// diferente de nil quando o contexto é cancelado no meio do ciclo.
func (v *Verifier) Cycle(ctx context.Context) (Result, error) {
	res := Result{Inputs: v.randomInputs()}

	expected, err := v.engine.Evaluate(res.Inputs)
	if err != nil {
		return res, fmt.Errorf("erro ao avaliar lógica local: %w", err)
	}
	res.Expected = expected

	v.log.Debug().Interface("entradas", res.Inputs).Interface("esperado", expected).Msg("Iniciando ciclo de verificação")

	actual, err := v.exercise(ctx, res.Inputs)
	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}

	switch {
	case err != nil:
		res.Outcome = OutcomeLost
		v.log.Warn().Err(err).Msg("Conexão com o PLC alvo perdida")
		v.reporter.Enqueue(monitorclient.ActionAlert, MsgLostConnection)
	case !equal(actual, expected):
		res.Outcome = OutcomeMismatch
		v.log.Warn().Interface("esperado", expected).Interface("lido", actual).Msg("Saída do PLC diferente da esperada")
		v.reporter.Enqueue(monitorclient.ActionAlert, MsgMismatch)
	default:
		res.Outcome = OutcomeNormal
		v.log.Debug().Interface("lido", actual).Msg("Ciclo de verificação normal")
		v.reporter.Enqueue(monitorclient.ActionNormal, MsgNormal)
	}
	res.Actual = actual
	res.At = time.Now()

	v.metrics.RecordVerificationCycle(string(res.Outcome))

	v.mu.Lock()
	v.connected = res.Outcome != OutcomeLost
	v.last = &res
	v.mu.Unlock()
	return res, nil
}

// exercise grava as entradas uma a uma e lê as saídas após o tempo de acomodação
func (v *Verifier) exercise(ctx context.Context, inputs []bool) ([]bool, error) {
	layout := v.engine.Layout()
	for i, addr := range layout.Inputs {
		if err := v.target.WriteBool(addr, inputs[i]); err != nil {
			return nil, fmt.Errorf("erro ao gravar entrada %d (%s): %w", i, addr, err)
		}
		if err := sleep(ctx, v.cfg.WriteDelay); err != nil {
			return nil, err
		}
	}
	if err := sleep(ctx, v.cfg.SettleDelay); err != nil {
		return nil, err
	}

	actual, err := v.target.ReadBools(layout.Outputs)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler saídas: %w", err)
	}
	if len(actual) != len(layout.Outputs) {
		return nil, fmt.Errorf("%d saídas lidas, esperado %d: %w", len(actual), len(layout.Outputs), plc.ErrConnectionLost)
	}
	return actual, nil
}

func (v *Verifier) randomInputs() []bool {
	in := make([]bool, ladder.InputCount)
	for i := range in {
		in[i] = v.rand.Intn(2) == 1
	}
	return in
}

func (v *Verifier) setConnected(c bool) {
	v.mu.Lock()
	v.connected = c
	v.mu.Unlock()
}

func equal(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
