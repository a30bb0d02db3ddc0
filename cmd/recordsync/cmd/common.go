package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/interactor"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/model/mshare"
	"github.com/the-dev-tools/recordsync/pkg/sharing"
)

const syncTimeout = time.Minute

type presentation struct {
	session *sharing.Session
	share   *mshare.Share
}

// cliWorkflow hands share sessions from the coordinator's goroutine back to
// the running command.
type cliWorkflow struct {
	presented chan presentation
	failed    chan error
}

func newCLIWorkflow() *cliWorkflow {
	return &cliWorkflow{
		presented: make(chan presentation, 1),
		failed:    make(chan error, 1),
	}
}

func (w *cliWorkflow) Present(s *sharing.Session, share *mshare.Share) {
	w.presented <- presentation{session: s, share: share}
}

func (w *cliWorkflow) Failed(_ *sharing.Session, err error) {
	w.failed <- err
}

func (w *cliWorkflow) wait(ctx context.Context) (presentation, error) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	select {
	case p := <-w.presented:
		return p, nil
	case err := <-w.failed:
		return presentation{}, err
	case <-ctx.Done():
		return presentation{}, errmap.Map(ctx.Err())
	}
}

func parseID(text string) (idwrap.Identifier, error) {
	id, err := idwrap.Parse(text)
	if err != nil {
		return idwrap.Identifier{}, errmap.New(errmap.CodeInvalidInput, fmt.Sprintf("invalid identifier %q, expected s:<text> or i:<number>", text), err)
	}
	return id, nil
}

func errNoMatch(kind string, id idwrap.Identifier) error {
	return errmap.New(errmap.CodeNotFound, fmt.Sprintf("no %s %s", kind, id), nil)
}

// loadCompanies returns a loaded owned-company interactor.
func loadCompanies(ctx context.Context, opts ...interactor.Option) (*interactor.Company, error) {
	companies := application.Companies(nil, opts...)
	if err := companies.Load(ctx); err != nil {
		return nil, err
	}
	return companies, nil
}

func findCompany(companies *interactor.Company, id idwrap.Identifier) (mcompany.Company, error) {
	for _, c := range companies.Entities() {
		if c.ID == id {
			return c, nil
		}
	}
	return mcompany.Company{}, errNoMatch("company", id)
}

func findEmployee(employees *interactor.Employee, id idwrap.Identifier) (memployee.Employee, error) {
	for _, e := range employees.Entities() {
		if e.ID == id {
			return e, nil
		}
	}
	return memployee.Employee{}, errNoMatch("employee", id)
}

func printCompanies(w io.Writer, companies []mcompany.Company) {
	for _, c := range companies {
		fmt.Fprintf(w, "%-40s %-16s %s\n", c.ID, c.Sharing, c.DisplayName())
	}
}

func printEmployees(w io.Writer, employees []memployee.Employee) {
	for _, e := range employees {
		photo := ""
		if len(e.Photo) > 0 {
			photo = fmt.Sprintf(" (photo, %d bytes)", len(e.Photo))
		}
		fmt.Fprintf(w, "%-40s %s%s\n", e.ID, e.DisplayName(), photo)
	}
}
