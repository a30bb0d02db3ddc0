package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.SyncEnabled())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSetSyncEnabledPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	var got []bool
	m, err := Open(path, WithListeners(func(enabled bool) { got = append(got, enabled) }))
	require.NoError(t, err)

	require.NoError(t, m.SetSyncEnabled(false))
	require.NoError(t, m.SetSyncEnabled(false))
	assert.Equal(t, []bool{false}, got)
	assert.False(t, m.SyncEnabled())
	m.Close()

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, reopened.SyncEnabled())

	var late []bool
	reopened.AddListener(func(enabled bool) { late = append(late, enabled) })
	require.NoError(t, reopened.SetSyncEnabled(true))
	assert.Equal(t, []bool{true}, late)
}

func TestCloseDropsListeners(t *testing.T) {
	t.Parallel()

	m, err := Open(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	calls := 0
	m.AddListener(func(bool) { calls++ })
	m.Close()
	m.AddListener(func(bool) { calls++ })

	assert.ErrorIs(t, m.SetSyncEnabled(false), ErrClosed)
	assert.Zero(t, calls)
}

func TestOpenRejectsBrokenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync_enabled: [\n"), 0o600))
	_, err := Open(path)
	assert.Error(t, err)
}
