// Package memremote is an in-process remotesync.Synchronizer. Share metadata
// lives in the local backend's share table; shares accepted from other users
// are merged into the backend on the next Synchronize, like an asynchronous
// pull from a real service.
package memremote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/the-dev-tools/recordsync/pkg/dbtime"
	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/remotesync"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

// Incoming is a share another user granted, together with the records it
// exposes.
type Incoming struct {
	Share     mshare.Share
	Companies []store.CompanyRecord
	Employees []store.EmployeeRecord
}

type Service struct {
	backend store.Backend
	userID  string
	latency time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	failures    []error
	incoming    []Incoming
	changeToken string
	syncs       int
	fullSyncs   int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLatency delays every network-bound call.
func WithLatency(d time.Duration) Option {
	return func(s *Service) {
		s.latency = d
	}
}

// WithUserID names the local user in created shares.
func WithUserID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.userID = id
		}
	}
}

var _ remotesync.Synchronizer = (*Service)(nil)

func New(backend store.Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		userID:  "local",
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext queues errors returned by the following Synchronize calls, one per
// call.
func (s *Service) FailNext(errs ...error) {
	s.mu.Lock()
	s.failures = append(s.failures, errs...)
	s.mu.Unlock()
}

// Accept queues a share granted to the local user; the next Synchronize
// materializes it as a partition.
func (s *Service) Accept(in Incoming) {
	s.mu.Lock()
	s.incoming = append(s.incoming, in)
	s.mu.Unlock()
}

// Stats reports how many synchronizations ran and how many of them started
// from scratch.
func (s *Service) Stats() (syncs, fullSyncs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs, s.fullSyncs
}

func (s *Service) Synchronize(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		s.logger.Warn("memremote: synchronize failed", "error", err)
		return err
	}
	incoming := s.incoming
	s.incoming = nil
	full := s.changeToken == ""
	s.mu.Unlock()

	for i, in := range incoming {
		if err := s.merge(ctx, in); err != nil {
			s.mu.Lock()
			s.incoming = append(incoming[i:], s.incoming...)
			s.mu.Unlock()
			return errmap.Wrap(errmap.CodeRemoteSync, "merge shared partition", err)
		}
	}

	s.mu.Lock()
	s.changeToken = ulid.Make().String()
	s.syncs++
	if full {
		s.fullSyncs++
	}
	s.mu.Unlock()
	s.logger.Debug("memremote: synchronized", "merged", len(incoming), "full", full)
	return nil
}

func (s *Service) merge(ctx context.Context, in Incoming) error {
	partition := in.Share.Partition
	if err := s.backend.CreatePartition(ctx, partition); err != nil {
		return err
	}
	companies := s.backend.Companies(partition)
	for _, rec := range in.Companies {
		err := companies.Insert(ctx, rec)
		if errors.Is(err, store.ErrConflict) {
			err = companies.Update(ctx, rec)
		}
		if err != nil {
			return err
		}
	}
	data, err := json.Marshal(in.Share)
	if err != nil {
		return fmt.Errorf("memremote: encode share: %w", err)
	}
	for _, rec := range in.Companies {
		if err := s.backend.Shares().PutShare(ctx, shareKey(rec), data); err != nil {
			return err
		}
	}
	employees := s.backend.Employees(partition)
	for _, rec := range in.Employees {
		err := employees.Insert(ctx, rec)
		if errors.Is(err, store.ErrConflict) {
			err = employees.Update(ctx, rec)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ShareFor(ctx context.Context, rec store.CompanyRecord) (mshare.Share, bool) {
	data, err := s.backend.Shares().GetShare(ctx, shareKey(rec))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("memremote: read share", "record", rec.ID.String(), "error", err)
		}
		return mshare.Share{}, false
	}
	var share mshare.Share
	if err := json.Unmarshal(data, &share); err != nil {
		s.logger.Error("memremote: decode share", "record", rec.ID.String(), "error", err)
		return mshare.Share{}, false
	}
	share.RecordID = rec.ID
	return share, true
}

func (s *Service) CreateShare(ctx context.Context, rec store.CompanyRecord, permission mshare.Permission, participants []mshare.Participant) (mshare.Share, error) {
	if err := s.wait(ctx); err != nil {
		return mshare.Share{}, err
	}
	title := ""
	if rec.Name != nil {
		title = *rec.Name
	}
	id := mshare.NewID()
	owner := mshare.Participant{UserID: s.userID, Permission: mshare.PermissionReadWrite, Accepted: true}
	return mshare.Share{
		ID:               id,
		RecordID:         rec.ID,
		Partition:        "share-" + id,
		Title:            title,
		PublicPermission: permission,
		Participants:     append([]mshare.Participant{owner}, participants...),
		CurrentUser:      &owner,
		Modified:         dbtime.DBNow(),
	}, nil
}

func (s *Service) SaveShare(ctx context.Context, share mshare.Share, rec store.CompanyRecord) error {
	share.RecordID = rec.ID
	share.Modified = dbtime.DBNow()
	data, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("memremote: encode share: %w", err)
	}
	return s.backend.Shares().PutShare(ctx, shareKey(rec), data)
}

// DeleteShare is a no-op when rec has no share.
func (s *Service) DeleteShare(ctx context.Context, rec store.CompanyRecord) error {
	err := s.backend.Shares().DeleteShare(ctx, shareKey(rec))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) DeleteZone(ctx context.Context, partition string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.backend.DropPartition(ctx, partition); err != nil {
		return err
	}
	shares, err := s.backend.Shares().ListShares(ctx)
	if err != nil {
		return err
	}
	for key, data := range shares {
		var share mshare.Share
		if json.Unmarshal(data, &share) != nil || share.Partition != partition {
			continue
		}
		if err := s.backend.Shares().DeleteShare(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *Service) EraseLocalMetadata() error {
	s.mu.Lock()
	s.changeToken = ""
	s.mu.Unlock()
	s.logger.Info("memremote: local sync metadata erased")
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shareKey(rec store.CompanyRecord) string {
	return rec.ID.String()
}
