// Package config reads process configuration from RECORDSYNC_* environment
// variables and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
)

const EnvPrefix = "RECORDSYNC"

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const (
	KeyBackend       = "backend"
	KeyDBPath        = "db_path"
	KeyKeyKind       = "key_kind"
	KeyShareCacheTTL = "share_cache_ttl"
	KeySyncLatency   = "sync_latency"
	KeyLogLevel      = "log_level"
	KeyUserID        = "user_id"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Backend       string
	DBPath        string
	KeyKind       idwrap.Kind
	ShareCacheTTL time.Duration
	SyncLatency   time.Duration
	LogLevel      slog.Level
	UserID        string
}

// New returns a viper instance bound to the RECORDSYNC_ environment with
// defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyBackend, BackendSQLite)
	v.SetDefault(KeyDBPath, "recordsync.db")
	v.SetDefault(KeyKeyKind, "string")
	v.SetDefault(KeyShareCacheTTL, 30*time.Second)
	v.SetDefault(KeySyncLatency, time.Duration(0))
	v.SetDefault(KeyLogLevel, "ERROR")
	v.SetDefault(KeyUserID, "me")
	return v
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Backend:       strings.ToLower(v.GetString(KeyBackend)),
		DBPath:        v.GetString(KeyDBPath),
		ShareCacheTTL: v.GetDuration(KeyShareCacheTTL),
		SyncLatency:   v.GetDuration(KeySyncLatency),
		LogLevel:      ParseLevel(v.GetString(KeyLogLevel)),
		UserID:        v.GetString(KeyUserID),
	}

	switch cfg.Backend {
	case BackendSQLite:
		if cfg.DBPath == "" {
			return Config{}, fmt.Errorf("%w: %s is required for the sqlite backend", ErrInvalidConfig, KeyDBPath)
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, KeyBackend, cfg.Backend)
	}

	switch kind := strings.ToLower(v.GetString(KeyKeyKind)); kind {
	case "string", "uuid":
		cfg.KeyKind = idwrap.KindString
	case "int":
		cfg.KeyKind = idwrap.KindInt
	default:
		return Config{}, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, KeyKeyKind, kind)
	}

	if cfg.ShareCacheTTL < 0 || cfg.SyncLatency < 0 {
		return Config{}, fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return cfg, nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// NewLogger builds the process logger. LOG_LEVEL overrides the configured
// level when set.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = ParseLevel(env)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
