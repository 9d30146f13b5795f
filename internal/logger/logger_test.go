package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	t.Cleanup(func() { _ = Init(Config{Level: "info"}) })

	require.NoError(t, Init(Config{Level: "warn"}))
	assert.Equal(t, zerolog.WarnLevel, GetLogger().GetLevel())

	require.NoError(t, Init(Config{Level: "error", Debug: true}))
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	assert.Error(t, Init(Config{Level: "barulhento"}))
}

func TestWithComponent(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Output: "stderr"}))
	l := WithComponent("hub")
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}
