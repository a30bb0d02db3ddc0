package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "recordsync.db", cfg.DBPath)
	assert.Equal(t, idwrap.KindString, cfg.KeyKind)
	assert.Equal(t, 30*time.Second, cfg.ShareCacheTTL)
	assert.Equal(t, slog.LevelError, cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECORDSYNC_BACKEND", "memory")
	t.Setenv("RECORDSYNC_KEY_KIND", "int")
	t.Setenv("RECORDSYNC_SYNC_LATENCY", "250ms")
	t.Setenv("RECORDSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, idwrap.KindInt, cfg.KeyKind)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncLatency)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "backend", key: KeyBackend, val: "postgres"},
		{name: "key kind", key: KeyKeyKind, val: "float"},
		{name: "empty db path", key: KeyDBPath, val: ""},
		{name: "negative ttl", key: KeyShareCacheTTL, val: -time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelError, ParseLevel("bogus"))
}

func TestNewLoggerHonorsLogLevelEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelError)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
