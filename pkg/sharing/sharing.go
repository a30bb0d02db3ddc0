// Package sharing coordinates share workflows with the remote service. A
// workflow always synchronizes first, so the share editor never works from
// stale share metadata, then presents, then commits and refreshes.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/the-dev-tools/recordsync/pkg/cachettl"
	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/remotesync"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	ErrShareInProgress   = errmap.New(errmap.CodeShareInProgress, "sharing: share already in progress", nil)
	ErrSyncDisabled      = errmap.New(errmap.CodeSyncDisabled, "sharing: sync is disabled", nil)
	ErrInvalidTransition = errors.New("sharing: invalid state transition")
	ErrClosed            = errors.New("sharing: coordinator closed")
)

const DefaultCacheTTL = 30 * time.Second

// Workflow is the external share editor.
type Workflow interface {
	// Present opens the editor. share is nil when the record has no share
	// yet; the editor calls Session.Prepare once the user picks recipients.
	Present(s *Session, share *mshare.Share)
	// Failed reports a synchronize failure; the session is already idle.
	Failed(s *Session, err error)
}

// WorkflowFuncs adapts two functions to Workflow. Nil functions are skipped.
type WorkflowFuncs struct {
	PresentFunc func(s *Session, share *mshare.Share)
	FailedFunc  func(s *Session, err error)
}

func (w WorkflowFuncs) Present(s *Session, share *mshare.Share) {
	if w.PresentFunc != nil {
		w.PresentFunc(s, share)
	}
}

func (w WorkflowFuncs) Failed(s *Session, err error) {
	if w.FailedFunc != nil {
		w.FailedFunc(s, err)
	}
}

// Gate reports whether syncing is currently allowed.
type Gate interface {
	SyncEnabled() bool
}

// Refresher republishes an interactor after share state changed out of band.
type Refresher func(ctx context.Context) error

type Coordinator struct {
	remote     remotesync.Synchronizer
	workflow   Workflow
	gate       Gate
	refreshers []Refresher
	logger     *slog.Logger

	shared *cachettl.Cache[string, bool]
	group  singleflight.Group
	// syncCtx outlives any single caller so a coalesced synchronize is only
	// cut short by Close.
	syncCtx    context.Context
	syncCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithGate(g Gate) Option {
	return func(c *Coordinator) {
		c.gate = g
	}
}

// WithRefresher adds interactors to refresh after every committed change.
func WithRefresher(fns ...Refresher) Option {
	return func(c *Coordinator) {
		c.refreshers = append(c.refreshers, fns...)
	}
}

// WithCacheTTL bounds how long IsShared answers are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.shared.Close()
		c.shared = cachettl.New[string, bool](ttl, ttl)
	}
}

func New(remote remotesync.Synchronizer, workflow Workflow, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:   remote,
		workflow: workflow,
		logger:   slog.New(slog.DiscardHandler),
		shared:   cachettl.New[string, bool](DefaultCacheTTL, DefaultCacheTTL),
		sessions: make(map[string]*Session),
	}
	c.syncCtx, c.syncCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	if c.workflow == nil {
		c.workflow = WorkflowFuncs{}
	}
	return c
}

// Share starts a share workflow for rec. Only one workflow per record may be
// live; a second request fails with ErrShareInProgress.
func (c *Coordinator) Share(ctx context.Context, rec store.CompanyRecord) (*Session, error) {
	if !c.syncEnabled() {
		return nil, ErrSyncDisabled
	}

	key := recordKey(rec)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, busy := c.sessions[key]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrShareInProgress, rec.ID)
	}
	s := newSession(c, rec)
	c.sessions[key] = s
	c.mu.Unlock()

	c.logger.Debug("sharing: session started", "record", rec.ID.String())
	go s.synchronize(ctx)
	return s, nil
}

// Synchronize runs a full synchronize outside any share workflow and
// refreshes the interactors.
func (c *Coordinator) Synchronize(ctx context.Context) error {
	if !c.syncEnabled() {
		return ErrSyncDisabled
	}
	if err := c.synchronize(ctx); err != nil {
		return err
	}
	return c.refresh(ctx)
}

// IsShared reports whether the remote service knows a share for rec. It
// matches interactor.SharePredicate.
func (c *Coordinator) IsShared(rec store.CompanyRecord) bool {
	key := recordKey(rec)
	if v, ok := c.shared.Get(key); ok {
		return v
	}
	_, ok := c.remote.ShareFor(context.Background(), rec)
	c.shared.Set(key, ok)
	return ok
}

// CanEdit reports whether the current user may modify a shared record.
// Records without a share are the user's own and always editable.
func (c *Coordinator) CanEdit(ctx context.Context, rec store.CompanyRecord) bool {
	share, ok := c.remote.ShareFor(ctx, rec)
	if !ok {
		return true
	}
	return share.CanEdit()
}

// DeleteZone removes a shared partition and refreshes.
func (c *Coordinator) DeleteZone(ctx context.Context, partition string) error {
	if err := c.remote.DeleteZone(ctx, partition); err != nil {
		c.logger.Error("sharing: delete zone", "partition", partition, "error", err)
		return errmap.Wrap(errmap.CodeRemoteSync, "delete zone", err)
	}
	c.shared.Clear()
	return c.refresh(ctx)
}

// Sessions returns the number of live share workflows.
func (c *Coordinator) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close abandons every live session.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		_ = s.Abandon()
	}
	c.syncCancel()
	c.shared.Close()
}

func (c *Coordinator) syncEnabled() bool {
	return c.gate == nil || c.gate.SyncEnabled()
}

// synchronize coalesces concurrent callers into one remote call. An expired
// change token triggers exactly one retry from scratch. The remote call runs
// on the coordinator's context; ctx only bounds how long this caller waits.
func (c *Coordinator) synchronize(ctx context.Context) error {
	ch := c.group.DoChan("synchronize", func() (any, error) {
		err := c.remote.Synchronize(c.syncCtx)
		if errmap.Is(err, errmap.CodeChangeTokenExpired) {
			c.logger.Warn("sharing: change token expired, resyncing from scratch")
			if eraseErr := c.remote.EraseLocalMetadata(); eraseErr != nil {
				return nil, errors.Join(err, eraseErr)
			}
			err = c.remote.Synchronize(c.syncCtx)
		}
		c.shared.Clear()
		return nil, err
	})

	var err error
	select {
	case <-ctx.Done():
		c.logger.Debug("sharing: stopped waiting for synchronize", "error", ctx.Err())
		return errmap.Map(ctx.Err())
	case res := <-ch:
		err = res.Err
	}
	if err != nil {
		c.logger.Error("sharing: synchronize", "error", err)
		var mapped *errmap.Error
		if !errors.As(err, &mapped) {
			err = errmap.Wrap(errmap.CodeRemoteSync, "synchronize", err)
		}
	}
	return err
}

func (c *Coordinator) refresh(ctx context.Context) error {
	var errs []error
	for _, fn := range c.refreshers {
		if err := fn(ctx); err != nil {
			c.logger.Error("sharing: refresh", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) finish(s *Session) {
	c.mu.Lock()
	if c.sessions[recordKey(s.rec)] == s {
		delete(c.sessions, recordKey(s.rec))
	}
	c.mu.Unlock()
}

func (c *Coordinator) invalidate(rec store.CompanyRecord) {
	c.shared.Delete(recordKey(rec))
}

func recordKey(rec store.CompanyRecord) string {
	return rec.Partition + "/" + rec.ID.String()
}
