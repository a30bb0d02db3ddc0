//nolint:revive // exported
package mcompany

import "github.com/the-dev-tools/recordsync/pkg/idwrap"

// NilName is shown for entities whose stored name is unset.
const NilName = "Nil name"

// ShareState replaces a pair of isSharing/isShared flags so that a company can
// never be both shared by the owner and shared with the owner.
type ShareState uint8

const (
	ShareStateOwned        ShareState = 0
	ShareStateSharedByMe   ShareState = 1
	ShareStateSharedWithMe ShareState = 2
)

func (s ShareState) String() string {
	switch s {
	case ShareStateSharedByMe:
		return "shared-by-me"
	case ShareStateSharedWithMe:
		return "shared-with-me"
	default:
		return "owned"
	}
}

type Company struct {
	Name    *string
	ID      idwrap.Identifier
	Sharing ShareState
}

// IsSharing reports whether the local owner attached a share to the company.
func (c Company) IsSharing() bool {
	return c.Sharing == ShareStateSharedByMe
}

// IsShared reports whether the company comes from a partition owned by
// someone else.
func (c Company) IsShared() bool {
	return c.Sharing == ShareStateSharedWithMe
}

func (c Company) DisplayName() string {
	if c.Name == nil {
		return NilName
	}
	return *c.Name
}
