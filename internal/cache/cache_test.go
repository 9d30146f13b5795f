package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	m := NewMemoryCache()

	require.NoError(t, m.SetValue("hub:agent:plc-01:state", "a"))
	require.NoError(t, m.SetValue("hub:agent:ctrl-01:state", "b"))
	require.NoError(t, m.SetValue("outra", "c"))

	v, err := m.GetValue("hub:agent:plc-01:state")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = m.GetValue("ausente")
	require.NoError(t, err)
	assert.Empty(t, v)

	keys, err := m.ListKeys(AgentStatePattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"hub:agent:ctrl-01:state", "hub:agent:plc-01:state"}, keys)

	keys, err = m.ListKeys("outra")
	require.NoError(t, err)
	assert.Equal(t, []string{"outra"}, keys)

	require.NoError(t, m.DeleteKey("outra"))
	v, _ = m.GetValue("outra")
	assert.Empty(t, v)
	assert.NoError(t, m.Publish(EventsChannel, "x"))
}

func TestJSONHelpers(t *testing.T) {
	m := NewMemoryCache()
	type state struct {
		ID     string `json:"id"`
		Online bool   `json:"online"`
	}

	require.NoError(t, SetJSON(m, AgentStateKey("plc-01"), state{ID: "plc-01", Online: true}))

	var got state
	ok, err := GetJSON(m, AgentStateKey("plc-01"), &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, state{ID: "plc-01", Online: true}, got)

	ok, err = GetJSON(m, AgentStateKey("nada"), &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetValue("ruim", "{"))
	_, err = GetJSON(m, "ruim", &got)
	assert.Error(t, err)
}

// fakeRedis se comporta como um Redis remoto que pode cair
type fakeRedis struct {
	*MemoryCache
	down *atomic.Bool
}

func (f *fakeRedis) Ping() error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestDynamicCacheFallbackAndRecovery(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	remote := &fakeRedis{MemoryCache: NewMemoryCache(), down: &down}

	connect := func(RedisConfig) (Cache, error) {
		if down.Load() {
			return nil, errors.New("connection refused")
		}
		return remote, nil
	}

	dc := newDynamicCache(context.Background(), RedisConfig{}, zerolog.Nop(), 5*time.Millisecond, connect)
	defer dc.Close()
	assert.Equal(t, "memory", dc.Backend())

	require.NoError(t, dc.SetValue(AgentStateKey("plc-01"), `{"id":"plc-01"}`))

	down.Store(false)
	require.Eventually(t, func() bool { return dc.Backend() == "redis" }, 2*time.Second, 5*time.Millisecond)

	v, err := remote.GetValue(AgentStateKey("plc-01"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"plc-01"}`, v, "estado em memória migrado")

	down.Store(true)
	require.Eventually(t, func() bool { return dc.Backend() == "memory" }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, dc.SetValue("k", "v"))
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}
