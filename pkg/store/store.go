// Package store defines the local backend contract shared by every storage
// implementation: partitioned company/employee collections that hand out live
// queries, a partition registry, and a small share metadata table.
package store

import (
	"context"
	"time"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/eventstream"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
)

// OwnedPartition holds the local user's own data. Every other partition key
// names data shared with the user.
const OwnedPartition = "owned"

var (
	ErrNotFound         = errmap.New(errmap.CodeNotFound, "store: record not found", nil)
	ErrConflict         = errmap.New(errmap.CodeLocalStore, "store: record already exists", nil)
	ErrInvalidRecord    = errmap.New(errmap.CodeInvalidInput, "store: invalid record", nil)
	ErrInvalidPartition = errmap.New(errmap.CodeInvalidInput, "store: invalid partition", nil)
	ErrClosed           = errmap.New(errmap.CodeLocalStore, "store: backend closed", nil)
)

type Record interface {
	livequery.Record
}

type CompanyRecord struct {
	ID        idwrap.Identifier
	Partition string
	Name      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r CompanyRecord) RecordID() idwrap.Identifier { return r.ID }
func (r CompanyRecord) RecordName() *string         { return r.Name }

func (r CompanyRecord) Fields() map[string]any {
	return map[string]any{
		"id":        r.ID.String(),
		"partition": r.Partition,
		"name":      nullable(r.Name),
	}
}

type EmployeeRecord struct {
	ID        idwrap.Identifier
	CompanyID idwrap.Identifier
	Partition string
	Name      *string
	Photo     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r EmployeeRecord) RecordID() idwrap.Identifier { return r.ID }
func (r EmployeeRecord) RecordName() *string         { return r.Name }

func (r EmployeeRecord) Fields() map[string]any {
	return map[string]any{
		"id":         r.ID.String(),
		"company_id": r.CompanyID.String(),
		"partition":  r.Partition,
		"name":       nullable(r.Name),
		"has_photo":  len(r.Photo) > 0,
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Topic addresses the change stream of one entity type within one partition.
type Topic struct {
	Partition string
	Entity    mutation.EntityType
}

type Streamer = eventstream.SyncStreamer[Topic, mutation.Event]

// Collection is one partition's view of a record type.
type Collection[R Record] interface {
	Query(ctx context.Context, q livequery.Query) (livequery.Source[R], error)
	Get(ctx context.Context, id idwrap.Identifier) (R, error)
	Insert(ctx context.Context, r R) error
	// Update overwrites every mutable field; nil values clear.
	Update(ctx context.Context, r R) error
	// Delete returns ErrNotFound when id is absent.
	Delete(ctx context.Context, id idwrap.Identifier) error
}

// ShareStore keeps opaque share metadata keyed by the shared record.
type ShareStore interface {
	GetShare(ctx context.Context, key string) ([]byte, error)
	PutShare(ctx context.Context, key string, data []byte) error
	DeleteShare(ctx context.Context, key string) error
	ListShares(ctx context.Context) (map[string][]byte, error)
}

type Backend interface {
	Companies(partition string) Collection[CompanyRecord]
	Employees(partition string) Collection[EmployeeRecord]

	// Partitions lists shared partitions; OwnedPartition is never included.
	Partitions(ctx context.Context) ([]string, error)
	// WatchPartitions calls fn after the partition set changes, until ctx is
	// done.
	WatchPartitions(ctx context.Context, fn func()) error
	CreatePartition(ctx context.Context, key string) error
	// DropPartition removes a shared partition together with its records.
	DropPartition(ctx context.Context, key string) error

	Shares() ShareStore
	Close() error
}

// ValidatePartition rejects empty keys.
func ValidatePartition(key string) error {
	if key == "" {
		return ErrInvalidPartition
	}
	return nil
}
