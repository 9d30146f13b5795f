package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DynamicCache é um wrapper que implementa a interface Cache e
// alterna dinamicamente entre RedisCache e MemoryCache conforme o health check.
type DynamicCache struct {
	mu       sync.RWMutex
	active   Cache
	redisCfg RedisConfig
	log      zerolog.Logger
	interval time.Duration
	connect  func(RedisConfig) (Cache, error)
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDynamicCache tenta conectar ao Redis e, se falhar, usa o cache em memória como fallback.
func NewDynamicCache(ctx context.Context, redisCfg RedisConfig, log zerolog.Logger) *DynamicCache {
	return newDynamicCache(ctx, redisCfg, log, 5*time.Second, func(cfg RedisConfig) (Cache, error) {
		return NewRedisCache(cfg)
	})
}

func newDynamicCache(ctx context.Context, redisCfg RedisConfig, log zerolog.Logger, interval time.Duration, connect func(RedisConfig) (Cache, error)) *DynamicCache {
	active, err := connect(redisCfg)
	if err != nil {
		log.Warn().Err(err).Msg("Erro ao conectar ao Redis, usando cache em memória como fallback")
		active = NewMemoryCache()
	} else {
		log.Info().Msg("Conectado ao Redis com sucesso")
	}

	dctx, cancel := context.WithCancel(ctx)
	dc := &DynamicCache{
		active:   active,
		redisCfg: redisCfg,
		log:      log,
		interval: interval,
		connect:  connect,
		ctx:      dctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go dc.healthCheckRoutine()
	return dc
}

type pinger interface {
	Ping() error
}

// healthCheckRoutine verifica periodicamente a saúde do cache ativo.
// Se o Redis estiver ativo e o ping falhar, alterna para MemoryCache.
// Se estiver usando MemoryCache, tenta reconectar ao Redis.
func (dc *DynamicCache) healthCheckRoutine() {
	defer close(dc.done)

	ticker := time.NewTicker(dc.interval)
	defer ticker.Stop()

	recoveryAttempt := 0
	const maxBackoff = 60

	for {
		select {
		case <-dc.ctx.Done():
			dc.log.Debug().Msg("Health check do cache finalizado")
			return
		case <-ticker.C:
		}

		dc.mu.RLock()
		current := dc.active
		dc.mu.RUnlock()

		if p, ok := current.(pinger); ok {
			if err := p.Ping(); err != nil {
				dc.log.Warn().Err(err).Msg("Health check do Redis falhou, alternando para cache em memória")
				dc.swap(NewMemoryCache())
				recoveryAttempt = 0
			}
			continue
		}

		// primeiras 5 tentativas seguidas, depois a cada 12 ciclos
		if recoveryAttempt < 5 || recoveryAttempt%12 == 0 {
			next, err := dc.connect(dc.redisCfg)
			if err == nil {
				dc.log.Info().Int("tentativa", recoveryAttempt+1).Msg("Reconectado ao Redis")
				old := dc.swap(next)
				dc.migrate(old, next)
				recoveryAttempt = 0
				continue
			}
			dc.log.Debug().Err(err).Int("tentativa", recoveryAttempt+1).Msg("Reconexão ao Redis falhou")
		}
		if recoveryAttempt++; recoveryAttempt >= maxBackoff {
			recoveryAttempt = 0
		}
	}
}

func (dc *DynamicCache) swap(next Cache) Cache {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	old := dc.active
	dc.active = next
	return old
}

// migrate copia o estado acumulado em memória para o Redis recém-conectado
func (dc *DynamicCache) migrate(from, to Cache) {
	if _, ok := from.(*MemoryCache); !ok {
		from.Close()
		return
	}
	keys, err := from.ListKeys(AgentStatePattern)
	if err != nil {
		return
	}
	migrated := 0
	for _, k := range keys {
		v, err := from.GetValue(k)
		if err != nil || v == "" {
			continue
		}
		if err := to.SetValue(k, v); err != nil {
			dc.log.Warn().Err(err).Str("chave", k).Msg("Erro ao migrar chave para o Redis")
			continue
		}
		migrated++
	}
	dc.log.Info().Int("chaves", migrated).Msg("Estado em memória migrado para o Redis")
}

// Backend informa qual cache está ativo ("redis" ou "memory")
func (dc *DynamicCache) Backend() string {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	if _, ok := dc.active.(*MemoryCache); ok {
		return "memory"
	}
	return "redis"
}

// Close cancela o health check e fecha o cache ativo.
func (dc *DynamicCache) Close() error {
	dc.cancel()
	<-dc.done
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.active.Close()
}

// Métodos abaixo delegam as operações à instância ativa de Cache.

// SetValue delega para o cache ativo
func (dc *DynamicCache) SetValue(key string, value string) error {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.active.SetValue(key, value)
}

// GetValue recupera uma string arbitrária do cache ativo
func (dc *DynamicCache) GetValue(key string) (string, error) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.active.GetValue(key)
}

// DeleteKey delega para o cache ativo
func (dc *DynamicCache) DeleteKey(key string) error {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.active.DeleteKey(key)
}

// ListKeys delega para o cache ativo
func (dc *DynamicCache) ListKeys(pattern string) ([]string, error) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.active.ListKeys(pattern)
}

// Publish delega para o cache ativo
func (dc *DynamicCache) Publish(channel string, message string) error {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.active.Publish(channel, message)
}
