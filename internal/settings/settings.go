// Package settings holds user settings that outlive the process, persisted to
// $HOME/.recordsync.yaml.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	FileName      = ".recordsync"
	FileExtension = ".yaml"

	KeySyncEnabled = "sync_enabled"
)

var ErrClosed = errors.New("settings: closed")

// Listener is called after a setting changed, with the new value.
type Listener func(syncEnabled bool)

type Manager struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	listeners []Listener
	closed    bool
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithListeners(fns ...Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, fns...)
	}
}

// DefaultPath returns $HOME/.recordsync.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("settings: find home directory: %w", err)
	}
	return filepath.Join(home, FileName+FileExtension), nil
}

// Open loads settings from path, or from DefaultPath when path is empty. A
// missing file yields defaults and is created on the first change.
func Open(path string, opts ...Option) (*Manager, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("settings: expand %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault(KeySyncEnabled, true)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("settings: read %s: %w", path, err)
		}
	}

	m := &Manager{v: v, path: path, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SyncEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.GetBool(KeySyncEnabled)
}

// SetSyncEnabled persists the flag and notifies listeners when it changed.
func (m *Manager) SetSyncEnabled(enabled bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.v.GetBool(KeySyncEnabled) == enabled {
		m.mu.Unlock()
		return nil
	}
	m.v.Set(KeySyncEnabled, enabled)
	if err := m.v.WriteConfigAs(m.path); err != nil {
		m.v.Set(KeySyncEnabled, !enabled)
		m.mu.Unlock()
		return fmt.Errorf("settings: write %s: %w", m.path, err)
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("settings: sync toggled", "enabled", enabled)
	for _, fn := range listeners {
		fn(enabled)
	}
	return nil
}

// AddListener registers fn for later changes.
func (m *Manager) AddListener(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.listeners = append(m.listeners, fn)
	}
}

// Close drops every listener; later changes are rejected.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.listeners = nil
}
