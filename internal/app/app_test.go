package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/internal/config"
	"github.com/the-dev-tools/recordsync/internal/settings"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/logger/mocklogger"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/sharing"
	"github.com/the-dev-tools/recordsync/pkg/testutil"
)

const waitFor = 2 * time.Second

func newTestApp(t *testing.T, backend string, workflow sharing.Workflow) *App {
	t.Helper()
	v := config.New()
	v.Set(config.KeyBackend, backend)
	v.Set(config.KeyDBPath, filepath.Join(t.TempDir(), "recordsync.db"))
	v.Set(config.KeyKeyKind, "int")
	cfg, err := config.Load(v)
	require.NoError(t, err)

	set, err := settings.Open(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	t.Cleanup(set.Close)

	logger, _ := mocklogger.NewMockLogger()
	a, err := New(context.Background(), cfg, logger, set, workflow)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestShareRepublishesCompanies(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			presented := make(chan *sharing.Session, 1)
			a := newTestApp(t, backend, sharing.WorkflowFuncs{
				PresentFunc: func(s *sharing.Session, _ *mshare.Share) { presented <- s },
			})

			rec := testutil.NewRecorder[mcompany.Company]()
			companies := a.Companies(rec.Delegate)
			id, err := companies.Insert(ctx, "Acme")
			require.NoError(t, err)
			assert.Equal(t, idwrap.KindInt, id.Kind())
			require.NoError(t, companies.Load(ctx))

			entities := companies.Entities()
			require.Len(t, entities, 1)
			assert.Equal(t, mcompany.ShareStateOwned, entities[0].Sharing)
			r, ok := companies.Record(entities[0])
			require.True(t, ok)

			session, err := a.Sharing.Share(ctx, r)
			require.NoError(t, err)
			var s *sharing.Session
			select {
			case s = <-presented:
			case <-time.After(waitFor):
				t.Fatal("share editor never presented")
			}
			require.Same(t, session, s)
			share, err := s.Prepare(ctx, mshare.PermissionReadOnly, nil)
			require.NoError(t, err)
			require.NoError(t, s.DidSaveShare(ctx, share))

			require.Eventually(t, func() bool {
				sections, ok := rec.Last()
				return ok && len(sections) == 1 && len(sections[0]) == 1 &&
					sections[0][0].Sharing == mcompany.ShareStateSharedByMe
			}, waitFor, 10*time.Millisecond)
		})
	}
}

func TestDisablingSyncErasesMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newTestApp(t, config.BackendMemory, nil)

	require.NoError(t, a.Sharing.Synchronize(ctx))
	require.NoError(t, a.Sharing.Synchronize(ctx))
	_, full := a.Remote.Stats()
	require.Equal(t, 1, full)

	require.NoError(t, a.Settings.SetSyncEnabled(false))
	assert.ErrorIs(t, a.Sharing.Synchronize(ctx), sharing.ErrSyncDisabled)

	require.NoError(t, a.Settings.SetSyncEnabled(true))
	require.NoError(t, a.Sharing.Synchronize(ctx))
	_, full = a.Remote.Stats()
	assert.Equal(t, 2, full)
}

func TestOpenBackendRejectsUnknown(t *testing.T) {
	t.Parallel()
	_, err := OpenBackend(context.Background(), config.Config{Backend: "mongo"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
