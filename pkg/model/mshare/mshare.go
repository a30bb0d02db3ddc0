//nolint:revive // exported
package mshare

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
)

type Permission uint8

const (
	PermissionNone      Permission = 0
	PermissionReadOnly  Permission = 1
	PermissionReadWrite Permission = 2
)

func (p Permission) String() string {
	switch p {
	case PermissionReadOnly:
		return "read-only"
	case PermissionReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

func ParsePermission(s string) (Permission, bool) {
	switch s {
	case "none", "":
		return PermissionNone, true
	case "read-only", "ro":
		return PermissionReadOnly, true
	case "read-write", "rw":
		return PermissionReadWrite, true
	}
	return PermissionNone, false
}

type Participant struct {
	UserID     string     `json:"user_id" yaml:"user_id"`
	Permission Permission `json:"permission" yaml:"permission"`
	Accepted   bool       `json:"accepted" yaml:"accepted"`
}

// Share is a grant of access to one root record, owned by one participant.
type Share struct {
	ID               string            `json:"id" yaml:"id"`
	RecordID         idwrap.Identifier `json:"-" yaml:"-"`
	Partition        string            `json:"partition" yaml:"partition"`
	Title            string            `json:"title" yaml:"title"`
	PublicPermission Permission        `json:"public_permission" yaml:"public_permission"`
	Participants     []Participant     `json:"participants" yaml:"participants"`
	CurrentUser      *Participant      `json:"current_user,omitempty" yaml:"current_user,omitempty"`
	Modified         time.Time         `json:"modified" yaml:"modified"`
}

func NewID() string {
	return ulid.Make().String()
}

// CanEdit reports whether the current user may modify the shared record.
func (s Share) CanEdit() bool {
	return s.CurrentUser != nil && s.CurrentUser.Permission == PermissionReadWrite
}

// Participant returns the participant entry for userID.
func (s Share) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
