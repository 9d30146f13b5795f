package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/kuldeepsharma1/cyber-honey-pot/config"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/audit"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/database"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/emulator"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/logger"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/metrics"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
)

func main() {
	configPath := getEnv("CONFIG_FILE", "config/plcemulator.json")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Str("arquivo", configPath).Msg("Erro ao carregar configuração")
	}
	if err := logger.Init(cfg.Log); err != nil {
		l := logger.GetLogger()
		l.Fatal().Err(err).Msg("Erro ao configurar logger")
	}
	log := logger.WithComponent("plcemulator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	ladders, err := cfg.LadderRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao carregar tabelas ladder")
	}
	log.Info().Strs("ladders", ladders.IDs()).Msg("Tabelas ladder carregadas")

	auditor, closeAudit := openAuditor(ctx, cfg.Audit, log)
	defer closeAudit()

	admin := fiber.New(config.LoadFiberConfig("PLC Emulator"))
	if limit := cfg.Security.RateLimitMiddleware(); limit != nil {
		admin.Use(limit)
	}

	app, err := emulator.New(emulator.Config{
		Identity:     cfg.Identity(monitorclient.TypePLC),
		BindAddress:  cfg.PLC.BindAddress,
		AdminAddress: cfg.Admin.Address,
		AllowRead:    cfg.PLC.AllowRead,
		AllowWrite:   cfg.PLC.AllowWrite,
		Monitor:      cfg.MonitorClient(),
		ScanDetect: emulator.ScanDetectConfig{
			Enabled:   cfg.ScanDetect.Enabled,
			Threshold: cfg.ScanDetect.Threshold,
			Address:   cfg.ScanDetect.Address,
		},
	},
		emulator.WithLogger(log),
		emulator.WithMetrics(reg),
		emulator.WithAuditor(auditor),
		emulator.WithLadders(ladders),
		emulator.WithAdminApp(admin),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Erro ao montar PLC emulado")
	}

	if err := app.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("PLC emulado encerrado com erro")
	}
	log.Info().Msg("PLC emulado encerrado")
}

// openAuditor conecta a trilha de auditoria; sem banco as entradas são descartadas
func openAuditor(ctx context.Context, cfg config.AuditConfig, log zerolog.Logger) (audit.Auditor, func()) {
	if !cfg.Enabled {
		return audit.Nop{}, func() {}
	}

	db, err := database.NewDB(cfg.PostgreSQL)
	if err != nil {
		log.Warn().Err(err).Msg("Auditoria desativada: erro ao conectar ao PostgreSQL")
		return audit.Nop{}, func() {}
	}
	repo, err := database.NewAuditRepository(db, cfg.Table)
	if err == nil {
		err = repo.EnsureSchema(ctx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Auditoria desativada: erro ao preparar tabela")
		db.Close()
		return audit.Nop{}, func() {}
	}

	opts := []audit.Option{audit.WithLogger(log)}
	if cfg.BatchSize > 0 {
		opts = append(opts, audit.WithBatchSize(cfg.BatchSize))
	}
	if cfg.FlushTimeoutSeconds > 0 {
		opts = append(opts, audit.WithFlushTimeout(cfg.FlushTimeout()))
	}
	wa := audit.NewWriteAuditor(context.Background(), repo, opts...)
	log.Info().Str("tabela", cfg.Table).Msg("Auditoria de requisições ativada")
	return wa, func() {
		wa.Close()
		db.Close()
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
