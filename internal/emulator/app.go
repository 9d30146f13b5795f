// Package emulator monta a aplicação do PLC emulado: mapa de memória, lógica
// ladder, servidor do protocolo, allow-lists, relatórios ao hub e API de administração.
package emulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/access"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/audit"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/guard"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/ladder"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/memory"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/modbusplc"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/s7plc"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/scandetect"
)

// Reporter recebe os eventos do emulador
type Reporter interface {
	Enqueue(action, msg string) monitorclient.Event
}

// Config descreve um PLC emulado
type Config struct {
	Identity     monitorclient.Identity // Protocol escolhe o servidor; LadderID a lógica
	BindAddress  string                 // porta do protocolo
	AdminAddress string                 // API de administração; vazio desativa
	AllowRead    []string
	AllowWrite   []string
	Monitor      monitorclient.Config // HubURL vazio desativa os relatórios
	ScanDetect   ScanDetectConfig
}

// ScanDetectConfig liga o detector de varredura de portas
type ScanDetectConfig struct {
	Enabled   bool
	Threshold int    // portas distintas por IP; <= 0 usa o padrão
	Address   string // endereço local do socket bruto; vazio escuta todos
}

type protocolServer interface {
	ListenAndServe(ctx context.Context) error
	Stop()
}

// App é o contexto de um PLC emulado
type App struct {
	cfg      Config
	mem      *memory.Map
	engine   *ladder.Engine
	policy   *access.Policy
	server   protocolServer
	client   *monitorclient.Client
	reporter Reporter
	auditor  audit.Auditor
	metrics  *metrics.Registry
	ladders  *ladder.Registry
	log      zerolog.Logger
	admin    *fiber.App
	detector *scandetect.Detector
	openScan func(addr string) (scandetect.Source, error)

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configura um App
type Option func(*App)

// WithLogger define o logger
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics define o registro de métricas
func WithMetrics(r *metrics.Registry) Option {
	return func(a *App) { a.metrics = r }
}

// WithAuditor grava as requisições do protocolo na trilha de auditoria
func WithAuditor(au audit.Auditor) Option {
	return func(a *App) { a.auditor = au }
}

// WithReporter substitui o cliente do hub
func WithReporter(r Reporter) Option {
	return func(a *App) { a.reporter = r }
}

// WithLadders define o registro de tabelas ladder disponíveis
func WithLadders(r *ladder.Registry) Option {
	return func(a *App) { a.ladders = r }
}

// WithAdminApp usa um app Fiber já configurado para a API de administração
func WithAdminApp(app *fiber.App) Option {
	return func(a *App) { a.admin = app }
}

// WithScanSource substitui a abertura do socket bruto do detector de varredura
func WithScanSource(open func(addr string) (scandetect.Source, error)) Option {
	return func(a *App) { a.openScan = open }
}

// New monta o emulador para o protocolo configurado
func New(cfg Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		mem:      memory.New(),
		auditor:  audit.Nop{},
		ladders:  ladder.NewRegistry(),
		log:      zerolog.Nop(),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		openScan: scandetect.OpenRaw,
	}
	for _, opt := range opts {
		opt(a)
	}

	layout, defaultLadder, err := ladder.ProtocolLayout(cfg.Identity.Protocol)
	if err != nil {
		return nil, err
	}
	if a.cfg.Identity.LadderID == "" {
		a.cfg.Identity.LadderID = defaultLadder
	}
	a.cfg.Identity.Type = monitorclient.TypePLC

	logic, err := a.ladders.Lookup(a.cfg.Identity.LadderID)
	if err != nil {
		return nil, err
	}
	a.engine, err = ladder.NewEngine(logic, layout, ladder.WithLogger(a.log), ladder.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	if err := layout.Declare(a.mem); err != nil {
		return nil, fmt.Errorf("erro ao declarar memória: %w", err)
	}
	if err := a.engine.Bind(a.mem); err != nil {
		return nil, err
	}

	a.policy, err = access.NewPolicy(cfg.AllowRead, cfg.AllowWrite)
	if err != nil {
		return nil, fmt.Errorf("allow-list padrão inválida: %w", err)
	}

	if a.reporter == nil && cfg.Monitor.HubURL != "" {
		a.client = monitorclient.New(cfg.Monitor, a.cfg.Identity,
			monitorclient.WithLogger(a.log), monitorclient.WithMetrics(a.metrics))
		a.reporter = a.client
	}
	a.policy.SetObserver(a.reportChange)

	g := guard.New(a.cfg.Identity.Protocol, a.policy, a.log).
		WithAuditor(a.auditor).
		WithMetrics(a.metrics).
		OnDenied(a.reportDenied)

	switch a.cfg.Identity.Protocol {
	case modbusplc.Protocol:
		a.server = modbusplc.NewServer(modbusplc.Config{Address: cfg.BindAddress}, a.mem, g, a.log)
	case s7plc.Protocol:
		a.server = s7plc.NewServer(s7plc.Config{Address: cfg.BindAddress}, a.mem, g, a.log)
	}

	if cfg.ScanDetect.Enabled {
		a.detector = scandetect.New(a.reporter,
			scandetect.WithThreshold(cfg.ScanDetect.Threshold),
			scandetect.WithLogger(a.log),
			scandetect.WithMetrics(a.metrics),
		)
	}

	if cfg.AdminAddress == "" {
		a.admin = nil
	} else {
		if a.admin == nil {
			a.admin = fiber.New(fiber.Config{DisableStartupMessage: true, ServerHeader: "PLC Emulator"})
		}
		a.RegisterAdmin(a.admin)
	}
	return a, nil
}

// Memory retorna o mapa de memória do PLC
func (a *App) Memory() *memory.Map { return a.mem }

// Policy retorna as allow-lists do PLC
func (a *App) Policy() *access.Policy { return a.policy }

// Run inicia relatórios, API de administração e servidor do protocolo; bloqueia
// até o contexto ser cancelado. Falha de bind do protocolo ou da API de
// administração encerra tudo e é retornada.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.client != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.client.Run(ctx)
		}()
	}

	if a.detector != nil {
		src, err := a.openScan(a.cfg.ScanDetect.Address)
		if err != nil {
			a.log.Warn().Err(err).Msg("Detector de varredura desativado (requer Linux e permissão de root)")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := a.detector.Run(ctx, src); err != nil {
					a.log.Error().Err(err).Msg("Detector de varredura encerrado com erro")
				}
			}()
		}
	}

	adminErr := make(chan error, 1)
	if a.admin != nil {
		go func() {
			a.log.Info().Str("endereco", a.cfg.AdminAddress).Msg("API de administração iniciada")
			adminErr <- a.admin.Listen(a.cfg.AdminAddress)
		}()
	}

	a.log.Info().
		Str("id", a.cfg.Identity.ID).
		Str("protocolo", a.cfg.Identity.Protocol).
		Str("ladder", a.engine.ID()).
		Msg("PLC emulado iniciado")

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.ListenAndServe(ctx) }()

	var err error
	select {
	case err = <-serverErr:
	case aerr := <-adminErr:
		if aerr != nil {
			a.log.Error().Err(aerr).Str("endereco", a.cfg.AdminAddress).Msg("API de administração encerrada com erro")
			err = fmt.Errorf("erro na API de administração em %s: %w", a.cfg.AdminAddress, aerr)
		}
		cancel()
		if serr := <-serverErr; err == nil {
			err = serr
		}
	}

	cancel()
	if a.admin != nil {
		a.admin.ShutdownWithTimeout(5 * time.Second)
	}
	wg.Wait()
	return err
}

func (a *App) reportChange(c access.Change) {
	var msg string
	switch c.Action {
	case "reset":
		msg = fmt.Sprintf("User try to reset the allow %s IP list.", c.Operation)
	default:
		msg = fmt.Sprintf("User try to add IP %s in the allow %s IP list.", c.IP, c.Operation)
	}
	a.log.Warn().Str("operacao", string(c.Operation)).Str("acao", c.Action).Str("ip", c.IP).Msg("Allow-list alterada")
	a.report(monitorclient.ActionAlert, msg)
}

func (a *App) reportDenied(op access.Operation, ip string) {
	a.report(monitorclient.ActionWarning, fmt.Sprintf("Unauthorized %s request from IP %s.", op, ip))
}

func (a *App) report(action, msg string) {
	if a.reporter != nil {
		a.reporter.Enqueue(action, msg)
	}
}

// PLCState é a leitura das entradas e saídas exibida pelo painel
type PLCState struct {
	InputVol    []float64     `json:"inputVol"`
	RegisterVal []interface{} `json:"registerVal"`
	CoilVal     []interface{} `json:"coilVal"`
	OutputVol   []float64     `json:"outputVol"`
}

// State lê entradas e saídas em um único snapshot
func (a *App) State() (PLCState, error) {
	layout := a.engine.Layout()
	var s PLCState
	err := a.mem.View(func(tx *memory.Tx) error {
		var err error
		if s.RegisterVal, err = readValues(tx, layout.Inputs); err != nil {
			return err
		}
		s.CoilVal, err = readValues(tx, layout.Outputs)
		return err
	})
	if err != nil {
		return PLCState{}, err
	}
	s.InputVol = a.voltages(s.RegisterVal)
	s.OutputVol = a.voltages(s.CoilVal)
	return s, nil
}

func readValues(tx *memory.Tx, addrs []memory.Address) ([]interface{}, error) {
	out := make([]interface{}, len(addrs))
	for i, addr := range addrs {
		v, err := tx.Read(addr.Block, addr.Offset)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// voltages simula a tensão do borne: 5 V ± 0,05 V quando ligado
func (a *App) voltages(values []interface{}) []float64 {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	out := make([]float64, len(values))
	for i, v := range values {
		if memory.Truthy(v) {
			out[i] = math.Round((5+a.rand.Float64()*0.1-0.05)*100) / 100
		}
	}
	return out
}
