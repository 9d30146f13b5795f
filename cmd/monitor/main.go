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

	"github.com/gofiber/fiber/v2"

	"github.com/kuldeepsharma1/cyber-honey-pot/config"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/cache"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/hub"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/logger"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/websocket"
)

func main() {
	configPath := getEnv("CONFIG_FILE", "config/monitor.json")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Str("arquivo", configPath).Msg("Erro ao carregar configuração")
	}
	if err := logger.Init(cfg.Log); err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Msg("Erro ao configurar logger")
	}
	log := logger.WithComponent("monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	// Configurar o espelho de estado: Redis com fallback em memória, ou só memória
	var stateCache cache.Cache = cache.NewMemoryCache()
	if cfg.Redis.Enabled {
		stateCache = cache.NewDynamicCache(ctx, cfg.Redis.Cache(), logger.WithComponent("cache"))
	}
	defer stateCache.Close()

	gerenciador := websocket.NovoGerenciador(logger.WithComponent("websocket"))
	gerenciador.Iniciar()
	defer gerenciador.Parar()

	manager := hub.NewDataManager(
		hub.WithLogger(log),
		hub.WithMetrics(reg),
		hub.WithCache(stateCache),
		hub.WithBroadcaster(gerenciador),
		hub.WithTimeout(time.Duration(cfg.Hub.TimeoutSeconds)*time.Second),
		hub.WithRecordLimit(cfg.Hub.RecordLimit),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx, 5*time.Second)
	}()

	app := fiber.New(config.LoadFiberConfig("Monitor Hub"))
	app.Use("/api", cfg.Security.CORSMiddleware())
	hub.NewAPI(manager, log).Register(app)

	listenErr := make(chan error, 2)
	go func() {
		log.Info().Str("endereco", cfg.Hub.Address).Msg("API do monitor hub iniciada")
		listenErr <- app.Listen(cfg.Hub.Address)
	}()

	var stream *http.Server
	if cfg.Hub.StreamAddress != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", gerenciador.ManipularWS)
		mux.Handle("/metrics", reg.Handler())
		stream = &http.Server{Addr: cfg.Hub.StreamAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Info().Str("endereco", cfg.Hub.StreamAddress).Msg("Stream WebSocket e métricas iniciados")
			if err := stream.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErr <- err
			}
		}()
	}

	var failed error
	select {
	case <-ctx.Done():
		log.Info().Msg("Sinal recebido, iniciando encerramento gracioso...")
	case failed = <-listenErr:
	}
	stop()

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn().Err(err).Msg("Erro ao encerrar API")
	}
	if stream != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		stream.Shutdown(shutdownCtx)
		cancel()
	}
	wg.Wait()
	if failed != nil {
		log.Fatal().Err(failed).Msg("Erro ao escutar, monitor hub encerrado")
	}
	log.Info().Msg("Monitor hub encerrado")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
