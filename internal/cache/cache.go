// Package cache espelha o estado dos agentes do hub em Redis, com fallback em memória.
package cache

import (
	"encoding/json"
	"fmt"
)

// Cache define a interface para operações de cache
type Cache interface {
	// Close fecha a conexão com o cache
	Close() error

	// SetValue armazena uma string arbitrária no cache
	SetValue(key string, value string) error

	// GetValue recupera uma string do cache; chave ausente retorna ""
	GetValue(key string) (string, error)

	// DeleteKey remove uma chave do cache
	DeleteKey(key string) error

	// ListKeys lista todas as chaves que correspondem a um padrão (sufixo * aceito)
	ListKeys(pattern string) ([]string, error)

	// Publish publica uma mensagem em um canal
	Publish(channel string, message string) error
}

// AgentStateKey é a chave do estado de um agente
func AgentStateKey(agentID string) string {
	return fmt.Sprintf("hub:agent:%s:state", agentID)
}

// AgentStatePattern casa com as chaves de estado de todos os agentes
const AgentStatePattern = "hub:agent:*"

// EventsChannel é o canal onde o hub publica cada relatório aceito
const EventsChannel = "hub:events"

// SetJSON serializa v e armazena em key
func SetJSON(c Cache, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("erro ao serializar %s: %w", key, err)
	}
	return c.SetValue(key, string(data))
}

// GetJSON lê key em v; retorna false se a chave não existe
func GetJSON(c Cache, key string, v interface{}) (bool, error) {
	data, err := c.GetValue(key)
	if err != nil || data == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("erro ao decodificar %s: %w", key, err)
	}
	return true, nil
}
