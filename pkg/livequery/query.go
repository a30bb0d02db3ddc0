package livequery

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
)

var ErrInvalidFilter = errors.New("livequery: invalid filter")

// Record is what a live query needs to know about a backend record.
type Record interface {
	RecordID() idwrap.Identifier
	RecordName() *string
	// Fields exposes the record to Where expressions.
	Fields() map[string]any
}

type Sort uint8

const (
	// SortByName orders by name ascending; records without a name sort as
	// Query.NilName and ties are broken by identifier.
	SortByName Sort = iota
	SortNone
)

type Filter struct {
	// ParentID restricts child collections to one parent. Backends push it
	// down into their own query.
	ParentID idwrap.Identifier
	// NameQuery keeps records whose name fuzzily contains the query,
	// case-insensitively.
	NameQuery string
	// Where is a boolean expression over Record.Fields, e.g.
	// `name startsWith "A"`.
	Where string
}

type Query struct {
	Filter Filter
	Sort   Sort
	// NilName is the name records without one sort under, normally the
	// display sentinel of the entity they translate to.
	NilName string
}

// Matcher applies the in-memory part of a Filter.
type Matcher struct {
	nameQuery string
	program   *vm.Program
}

// Compile validates the filter once so that every snapshot reuses it.
func Compile(f Filter) (*Matcher, error) {
	m := &Matcher{nameQuery: strings.TrimSpace(f.NameQuery)}
	if where := strings.TrimSpace(f.Where); where != "" {
		program, err := expr.Compile(where, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		m.program = program
	}
	return m, nil
}

// Match reports whether r passes the filter.
func (m *Matcher) Match(r Record) (bool, error) {
	if m == nil {
		return true, nil
	}
	if m.nameQuery != "" {
		name := r.RecordName()
		if name == nil || !fuzzy.MatchNormalizedFold(m.nameQuery, *name) {
			return false, nil
		}
	}
	if m.program == nil {
		return true, nil
	}
	out, err := expr.Run(m.program, r.Fields())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: expression returned %T", ErrInvalidFilter, out)
	}
	return ok, nil
}

// Apply filters records, keeping their order, then sorts them.
func Apply[R Record](records []R, m *Matcher, q Query) ([]R, error) {
	out := make([]R, 0, len(records))
	for _, r := range records {
		ok, err := m.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	if q.Sort == SortByName {
		SortRecords(out, q.NilName)
	}
	return out, nil
}

// SortRecords orders records by name using the root collation.
func SortRecords[R Record](records []R, nilName string) {
	c := collate.New(language.Und)
	name := func(r R) string {
		if n := r.RecordName(); n != nil {
			return *n
		}
		return nilName
	}
	slices.SortStableFunc(records, func(a, b R) int {
		if n := c.CompareString(name(a), name(b)); n != 0 {
			return n
		}
		return a.RecordID().Compare(b.RecordID())
	})
}
