package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFromZapKeepsFieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromZap(zap.New(core)).With("component", "session")

	log.Debug("hidden")
	log.Info("Bid accepted", "amount", "160")
	log.Warn("Bid failed", "error", "timeout")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]interface{}{"component": "session", "amount": "160"}, entries[0].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNewWithLevelFallsBackToInfo(t *testing.T) {
	log, ok := NewWithLevel("chatty").(*ZapLogger)
	require.True(t, ok)
	assert.False(t, log.logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.logger.Desugar().Core().Enabled(zapcore.InfoLevel))

	log, ok = NewWithLevel("debug").(*ZapLogger)
	require.True(t, ok)
	assert.True(t, log.logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}
