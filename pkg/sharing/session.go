package sharing

import (
	"context"
	"fmt"
	"sync"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

// Session is one share workflow for one record. It ends when the editor
// saves, stops sharing, abandons, or when synchronize fails.
type Session struct {
	c   *Coordinator
	rec store.CompanyRecord

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state state
	err   error
}

func newSession(c *Coordinator, rec store.CompanyRecord) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		c:      c,
		rec:    rec,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  synchronizing{},
	}
}

func (s *Session) Record() store.CompanyRecord { return s.rec }

// State names the current state: idle, synchronizing, presenting or
// committing.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Err is the synchronize or commit failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session is idle again.
func (s *Session) Done() <-chan struct{} { return s.done }

// Prepare returns the share to edit. An existing share is returned as is;
// otherwise a new one is created with the given permission and participants.
func (s *Session) Prepare(ctx context.Context, permission mshare.Permission, participants []mshare.Participant) (mshare.Share, error) {
	s.mu.Lock()
	p, ok := s.state.(presenting)
	s.mu.Unlock()
	if !ok {
		return mshare.Share{}, fmt.Errorf("%w: prepare while %s", ErrInvalidTransition, s.State())
	}
	if p.share != nil {
		return *p.share, nil
	}

	share, err := s.c.remote.CreateShare(ctx, s.rec, permission, participants)
	if err != nil {
		s.c.logger.Error("sharing: create share", "record", s.rec.ID.String(), "error", err)
		return mshare.Share{}, errmap.Wrap(errmap.CodeRemoteSync, "create share", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, still := s.state.(presenting); !still {
		return mshare.Share{}, fmt.Errorf("%w: prepare while %s", ErrInvalidTransition, s.state)
	}
	s.state = presenting{share: &share}
	return share, nil
}

// DidSaveShare attaches share to the record, then refreshes the interactors.
func (s *Session) DidSaveShare(ctx context.Context, share mshare.Share) error {
	if err := s.beginCommit(false); err != nil {
		return err
	}
	if err := s.c.remote.SaveShare(ctx, share, s.rec); err != nil {
		s.c.logger.Error("sharing: save share", "record", s.rec.ID.String(), "error", err)
		err = errmap.Wrap(errmap.CodeRemoteSync, "save share", err)
		s.finish(err)
		return err
	}
	return s.commit(ctx)
}

// DidStopSharing detaches the share from the record, then refreshes the
// interactors.
func (s *Session) DidStopSharing(ctx context.Context) error {
	if err := s.beginCommit(true); err != nil {
		return err
	}
	if err := s.c.remote.DeleteShare(ctx, s.rec); err != nil {
		s.c.logger.Error("sharing: delete share", "record", s.rec.ID.String(), "error", err)
		err = errmap.Wrap(errmap.CodeRemoteSync, "delete share", err)
		s.finish(err)
		return err
	}
	return s.commit(ctx)
}

// Abandon ends the session without committing. It is allowed while
// synchronizing or presenting. A session abandoned while synchronizing stops
// waiting at once and never presents or fails; the remote synchronize it
// joined keeps running for any other session waiting on it.
func (s *Session) Abandon() error {
	abandoned := s.finishFrom(func(st state) bool {
		switch st.(type) {
		case synchronizing, presenting:
			return true
		}
		return false
	}, nil)
	if !abandoned {
		return fmt.Errorf("%w: abandon while %s", ErrInvalidTransition, s.State())
	}
	s.c.logger.Debug("sharing: session abandoned", "record", s.rec.ID.String())
	return nil
}

// synchronize waits on the shared synchronize until it finishes or the
// session ends. The Share caller's cancellation does not reach it.
func (s *Session) synchronize(ctx context.Context) {
	ctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()
	unregister := context.AfterFunc(s.ctx, stop)
	defer unregister()

	if err := s.c.synchronize(ctx); err != nil {
		if s.finishFrom(isSynchronizing, err) {
			s.c.workflow.Failed(s, err)
		}
		return
	}

	var existing *mshare.Share
	if share, ok := s.c.remote.ShareFor(ctx, s.rec); ok {
		existing = &share
	}

	s.mu.Lock()
	if _, ok := s.state.(synchronizing); !ok {
		s.mu.Unlock()
		return
	}
	s.state = presenting{share: existing}
	s.mu.Unlock()

	s.c.workflow.Present(s, existing)
}

func (s *Session) beginCommit(stopping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.(presenting); !ok {
		return fmt.Errorf("%w: commit while %s", ErrInvalidTransition, s.state)
	}
	s.state = committing{stopping: stopping}
	return nil
}

func (s *Session) commit(ctx context.Context) error {
	s.c.invalidate(s.rec)
	err := s.c.refresh(ctx)
	s.finish(nil)
	return err
}

// finish moves to idle exactly once.
func (s *Session) finish(err error) {
	s.finishFrom(func(state) bool { return true }, err)
}

// finishFrom moves to idle when the current state satisfies from, and
// reports whether it did.
func (s *Session) finishFrom(from func(state) bool, err error) bool {
	s.mu.Lock()
	if _, ok := s.state.(idle); ok || !from(s.state) {
		s.mu.Unlock()
		return false
	}
	s.state = idle{}
	s.err = err
	s.mu.Unlock()

	s.cancel()
	s.c.finish(s)
	close(s.done)
	return true
}

func isSynchronizing(st state) bool {
	_, ok := st.(synchronizing)
	return ok
}
