package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig contém as configurações para conexão com o Redis.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// RedisCache encapsula a conexão e operações com o Redis.
type RedisCache struct {
	client  *redis.Client
	ctx     context.Context
	timeout time.Duration
}

// NewRedisCache cria uma nova instância do cache Redis e testa a conexão.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})

	r := &RedisCache{
		client:  client,
		ctx:     context.Background(),
		timeout: 2 * time.Second,
	}
	if err := r.Ping(); err != nil {
		client.Close()
		return nil, fmt.Errorf("erro ao conectar ao Redis: %w", err)
	}
	return r, nil
}

func (r *RedisCache) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.timeout)
}

// Ping realiza um health check no Redis, retornando erro se a conexão não estiver saudável.
func (r *RedisCache) Ping() error {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Close fecha a conexão com o Redis.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// SetValue armazena uma string arbitrária no Redis
func (r *RedisCache) SetValue(key string, value string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.client.Set(ctx, key, value, 0).Err()
}

// GetValue recupera uma string arbitrária do Redis
func (r *RedisCache) GetValue(key string) (string, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // Chave não existe
		}
		return "", err
	}
	return val, nil
}

// DeleteKey remove uma chave do Redis
func (r *RedisCache) DeleteKey(key string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

// ListKeys lista as chaves que correspondem ao padrão usando SCAN
func (r *RedisCache) ListKeys(pattern string) ([]string, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("erro ao listar chaves %s: %w", pattern, err)
	}
	return keys, nil
}

// Publish publica a mensagem no canal PubSub
func (r *RedisCache) Publish(channel string, message string) error {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.client.Publish(ctx, channel, message).Err()
}
