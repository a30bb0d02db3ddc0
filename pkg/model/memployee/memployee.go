//nolint:revive // exported
package memployee

import "github.com/the-dev-tools/recordsync/pkg/idwrap"

const NilName = "Nil name"

type Employee struct {
	Name  *string
	ID    idwrap.Identifier
	Photo []byte
}

func (e Employee) DisplayName() string {
	if e.Name == nil {
		return NilName
	}
	return *e.Name
}
