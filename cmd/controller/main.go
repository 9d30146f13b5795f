package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kuldeepsharma1/cyber-honey-pot/config"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/controller"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/ladder"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/logger"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/plc"
)

func main() {
	configPath := getEnv("CONFIG_FILE", "config/controller.json")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Str("arquivo", configPath).Msg("Erro ao carregar configuração")
	}
	if err := logger.Init(cfg.Log); err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Msg("Erro ao configurar logger")
	}
	log := logger.WithComponent("controller")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	// lógica local: mesma tabela que o PLC alvo executa
	layout, ladderID, err := ladder.ProtocolLayout(cfg.Own.Protocol)
	if err != nil {
		log.Fatal().Err(err).Msg("Protocolo do alvo inválido")
	}
	if cfg.Own.LadderID != "" {
		ladderID = cfg.Own.LadderID
	}
	cfg.Own.LadderID = ladderID
	ladders, err := cfg.LadderRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao carregar tabelas ladder")
	}
	logic, err := ladders.Lookup(ladderID)
	if err != nil {
		log.Fatal().Err(err).Msg("Lógica ladder desconhecida")
	}
	engine, err := ladder.NewEngine(logic, layout, ladder.WithLogger(log), ladder.WithMetrics(reg))
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao montar lógica ladder")
	}

	target, err := plc.NewTarget(cfg.PLCTarget())
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao criar cliente do PLC alvo")
	}
	breaker := plc.NewBreaker(cfg.Target.ID,
		plc.WithFailureThreshold(cfg.Controller.FailureThreshold),
		plc.WithResetTimeout(time.Duration(cfg.Controller.ResetTimeoutSeconds)*time.Second),
		plc.WithBreakerLogger(log),
	)
	monitored := plc.NewMonitored(target, breaker)
	defer monitored.Close()

	hubCfg := cfg.MonitorClient()
	reporter := monitorclient.New(hubCfg, cfg.Identity(monitorclient.TypeController),
		monitorclient.WithLogger(log), monitorclient.WithMetrics(reg))

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	var startReporting sync.Once
	verifier := controller.NewVerifier(cfg.Verifier(), monitored, engine, reporter,
		controller.WithLogger(log),
		controller.WithMetrics(reg),
		controller.OnConnected(func() {
			if hubCfg.HubURL == "" {
				return
			}
			startReporting.Do(func() { run(func() { reporter.Run(ctx) }) })
		}),
	)

	if cfg.Controller.UDPAddress != "" {
		udp := controller.NewStateService(cfg.Controller.UDPAddress, verifier, cfg.Controller.ErrorFlag, log)
		run(func() {
			if err := udp.ListenAndServe(ctx); err != nil {
				log.Error().Err(err).Msg("Serviço UDP de estado encerrado com erro")
			}
		})
	}

	if cfg.Admin.Address != "" {
		srv := &http.Server{Addr: cfg.Admin.Address, Handler: reg.Handler(), ReadHeaderTimeout: 10 * time.Second}
		run(func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Servidor de métricas encerrado com erro")
			}
		})
		run(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		})
	}

	log.Info().
		Str("id", cfg.Own.ID).
		Str("alvo", cfg.Target.IP).
		Str("protocolo", cfg.Own.Protocol).
		Msg("Controlador iniciado")

	if err := verifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Laço de verificação encerrado com erro")
	}
	stop()
	wg.Wait()
	log.Info().Msg("Controlador encerrado")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
