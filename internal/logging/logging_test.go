package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("loud", false)
	require.Error(t, err)
}

func TestInitAcceptsLevels(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		require.NoError(t, Init(lvl, true), "level %q", lvl)
	}
}

func TestNamedAddsComponentField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Named("ledger").Info("payment confirmed", zap.String("payment_id", "p-1"))
	Warn("plain warning")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "ledger", entries[0].ContextMap()["component"])
	assert.Equal(t, "p-1", entries[0].ContextMap()["payment_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
