package config

import (
	"time"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/cache"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/database"
)

// RedisConfig contém a conexão do espelho de estado do hub
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db" validate:"gte=0"`
}

// AuditConfig contém a trilha de auditoria das requisições do protocolo
type AuditConfig struct {
	Enabled             bool              `json:"enabled" yaml:"enabled"`
	PostgreSQL          database.DBConfig `json:"postgresql" yaml:"postgresql"`
	Table               string            `json:"table" yaml:"table" validate:"required"`
	BatchSize           int               `json:"batch_size" yaml:"batch_size" validate:"gte=0"`
	FlushTimeoutSeconds int               `json:"flush_timeout_seconds" yaml:"flush_timeout_seconds" validate:"gte=0"`
}

// LoadRedisConfig retorna a configuração padrão do Redis
func LoadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Host:    "localhost",
		Port:    6379,
	}
}

// LoadAuditConfig retorna a configuração padrão da auditoria
func LoadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled: false,
		PostgreSQL: database.DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "honeypot",
			Database: "honeypot",
			SSLMode:  "disable",
		},
		Table:               "protocol_audit",
		BatchSize:           100,
		FlushTimeoutSeconds: 5,
	}
}

// Cache retorna a configuração do cliente Redis
func (c RedisConfig) Cache() cache.RedisConfig {
	return cache.RedisConfig{
		Host:     c.Host,
		Port:     c.Port,
		Password: c.Password,
		DB:       c.DB,
	}
}

// FlushTimeout retorna o intervalo máximo entre gravações de lote
func (c AuditConfig) FlushTimeout() time.Duration {
	return time.Duration(c.FlushTimeoutSeconds) * time.Second
}
