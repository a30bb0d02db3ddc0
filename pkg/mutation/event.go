package mutation

import "github.com/the-dev-tools/recordsync/pkg/idwrap"

// EntityType identifies the type of entity being mutated.
type EntityType uint16

const (
	EntityCompany EntityType = iota
	EntityEmployee
	EntityPartition
	EntityShare
)

func (e EntityType) String() string {
	switch e {
	case EntityCompany:
		return "company"
	case EntityEmployee:
		return "employee"
	case EntityPartition:
		return "partition"
	case EntityShare:
		return "share"
	default:
		return "unknown"
	}
}

// Operation identifies the type of mutation.
type Operation uint8

const (
	OpInsert Operation = iota
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event represents a single committed mutation.
type Event struct {
	Entity    EntityType
	Op        Operation
	ID        idwrap.Identifier
	Partition string
	ParentID  idwrap.Identifier // company for employees
	Payload   any               // record after insert/update
}
