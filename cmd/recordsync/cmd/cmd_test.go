package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/sharing"
)

type cli struct {
	t        *testing.T
	db       string
	settings string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, db: filepath.Join(dir, "recordsync.db"), settings: filepath.Join(dir, "settings.yaml")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--db", c.db, "--settings", c.settings, "--backend", "sqlite"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(c.t, closeApp())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestCompaniesLifecycle(t *testing.T) {
	c := newCLI(t)

	id := strings.TrimSpace(c.mustRun("companies", "add", "Umbrella"))
	c.mustRun("companies", "add", "Acme")
	out := c.mustRun("companies", "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Acme")
	assert.Contains(t, lines[1], "Umbrella")

	empID := strings.TrimSpace(c.mustRun("employees", "add", id, "Alice"))
	assert.Contains(t, c.mustRun("employees", "list", id), "Alice")
	c.mustRun("employees", "rename", id, empID)
	assert.Contains(t, c.mustRun("employees", "list", id), "Nil name")

	c.mustRun("companies", "rename", id, "Umbrella Corp")
	assert.Contains(t, c.mustRun("companies", "list"), "Umbrella Corp")

	c.mustRun("companies", "rm", id)
	assert.NotContains(t, c.mustRun("companies", "list"), "Umbrella")

	_, err := c.run("companies", "rm", "bogus")
	assert.Error(t, err)

	c.mustRun("companies", "clear")
	assert.Empty(t, strings.TrimSpace(c.mustRun("companies", "list")))
}

func TestShareAndExport(t *testing.T) {
	c := newCLI(t)

	id := strings.TrimSpace(c.mustRun("companies", "add", "Acme"))
	c.mustRun("share", id, "--participant", "bob:rw")
	assert.Contains(t, c.mustRun("companies", "list"), "shared-by-me")

	c.mustRun("export", "--format", "json")
	out := c.mustRun("export", "--format", "json")
	var doc exportDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Owned, 1)
	assert.Equal(t, id, doc.Owned[0].ID)
	assert.Equal(t, "shared-by-me", doc.Owned[0].Sharing)

	c.mustRun("unshare", id)
	assert.Contains(t, c.mustRun("companies", "list"), "owned")
	assert.Contains(t, c.mustRun("unshare", id), "is not shared")
}

func TestSettingsGateSync(t *testing.T) {
	c := newCLI(t)

	assert.Contains(t, c.mustRun("settings", "sync"), "sync is on")
	assert.Contains(t, c.mustRun("settings", "sync", "off"), "sync is off")

	_, err := c.run("sync")
	assert.ErrorIs(t, err, sharing.ErrSyncDisabled)

	c.mustRun("settings", "sync", "on")
	c.mustRun("sync")
}

func TestParseParticipants(t *testing.T) {
	got, err := parseParticipants([]string{"alice", "bob:rw", "carol:read-only"})
	require.NoError(t, err)
	assert.Equal(t, []mshare.Participant{
		{UserID: "alice", Permission: mshare.PermissionReadOnly},
		{UserID: "bob", Permission: mshare.PermissionReadWrite},
		{UserID: "carol", Permission: mshare.PermissionReadOnly},
	}, got)

	_, err = parseParticipants([]string{"dave:admin"})
	assert.Error(t, err)
}
