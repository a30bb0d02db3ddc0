// Package remotesync is the contract with the remote synchronization
// service. Calls block until the service answers; callers that must stay
// responsive run them on their own goroutine.
package remotesync

import (
	"context"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	// ErrChangeTokenExpired means the service no longer recognizes the local
	// sync position; only a full re-sync from scratch recovers.
	ErrChangeTokenExpired = errmap.New(errmap.CodeChangeTokenExpired, "remotesync: change token expired", nil)
	ErrUnavailable        = errmap.New(errmap.CodeRemoteSync, "remotesync: service unavailable", nil)
)

type Synchronizer interface {
	// Synchronize pulls remote changes into the local backend and pushes
	// local ones.
	Synchronize(ctx context.Context) error

	// ShareFor returns the share attached to rec, if any, as of the last
	// synchronize.
	ShareFor(ctx context.Context, rec store.CompanyRecord) (mshare.Share, bool)

	// CreateShare prepares a share for rec. It is not attached until
	// SaveShare.
	CreateShare(ctx context.Context, rec store.CompanyRecord, permission mshare.Permission, participants []mshare.Participant) (mshare.Share, error)
	SaveShare(ctx context.Context, share mshare.Share, rec store.CompanyRecord) error
	DeleteShare(ctx context.Context, rec store.CompanyRecord) error

	// DeleteZone removes a shared partition from the local backend and stops
	// syncing it.
	DeleteZone(ctx context.Context, partition string) error

	// EraseLocalMetadata forgets the local sync position so the next
	// Synchronize starts from scratch.
	EraseLocalMetadata() error
}
