package cache

import (
	"sort"
	"strings"
	"sync"
)

// MemoryCache implementa a interface Cache usando armazenamento em memória
type MemoryCache struct {
	data  map[string]string
	mutex sync.RWMutex
}

// NewMemoryCache cria uma nova instância do cache em memória
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]string),
	}
}

// Close "fecha" o cache em memória (operação sem efeito para esse tipo)
func (m *MemoryCache) Close() error {
	return nil
}

// SetValue armazena uma string arbitrária no cache em memória
func (m *MemoryCache) SetValue(key string, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = value
	return nil
}

// GetValue recupera uma string arbitrária do cache em memória
func (m *MemoryCache) GetValue(key string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.data[key], nil
}

// DeleteKey remove uma chave do cache em memória
func (m *MemoryCache) DeleteKey(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)
	return nil
}

// ListKeys lista, em ordem, as chaves que correspondem ao padrão
func (m *MemoryCache) ListKeys(pattern string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	prefix, wildcard := strings.CutSuffix(pattern, "*")

	var keys []string
	for key := range m.data {
		if (wildcard && strings.HasPrefix(key, prefix)) || key == pattern {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Publish não tem assinantes em memória
func (m *MemoryCache) Publish(channel string, message string) error {
	return nil
}
