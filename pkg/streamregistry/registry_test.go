package streamregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/the-dev-tools/recordsync/pkg/mutation"
)

func TestRegistryRoutesByEntity(t *testing.T) {
	t.Parallel()

	r := New()
	var companies, employees []mutation.Operation
	r.Register(mutation.EntityCompany, func(evt mutation.Event) { companies = append(companies, evt.Op) })
	r.Register(mutation.EntityEmployee, func(evt mutation.Event) { employees = append(employees, evt.Op) })
	r.Register(mutation.EntityEmployee, func(evt mutation.Event) { employees = append(employees, evt.Op) })

	r.PublishAll([]mutation.Event{
		{Entity: mutation.EntityCompany, Op: mutation.OpInsert},
		{Entity: mutation.EntityEmployee, Op: mutation.OpDelete},
		{Entity: mutation.EntityShare, Op: mutation.OpUpdate},
	})

	assert.Equal(t, []mutation.Operation{mutation.OpInsert}, companies)
	assert.Equal(t, []mutation.Operation{mutation.OpDelete, mutation.OpDelete}, employees)
}
