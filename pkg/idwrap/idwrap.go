package idwrap

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind tags which variant an Identifier holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	default:
		return "none"
	}
}

// Identifier names a domain entity across backends. It is either a string or
// an integer; values of different kinds never compare equal, even when their
// textual forms coincide. The zero value is the empty identifier.
type Identifier struct {
	kind Kind
	s    string
	i    int64
}

var ErrInvalidIdentifier = errors.New("idwrap: invalid identifier")

func NewString(v string) Identifier {
	return Identifier{kind: KindString, s: v}
}

func NewInt(v int64) Identifier {
	return Identifier{kind: KindInt, i: v}
}

// NewUUID returns a string identifier holding a random UUID.
func NewUUID() Identifier {
	return NewString(uuid.NewString())
}

// NewRandomInt returns a random non-negative int identifier. Collisions are
// possible and accepted for small collections.
func NewRandomInt() Identifier {
	return NewInt(rand.Int64N(math.MaxInt64))
}

// NewOfKind generates a fresh identifier of the given kind.
func NewOfKind(kind Kind) Identifier {
	if kind == KindInt {
		return NewRandomInt()
	}
	return NewUUID()
}

func (id Identifier) Kind() Kind {
	return id.kind
}

func (id Identifier) IsZero() bool {
	return id.kind == KindNone
}

func (id Identifier) StringValue() (string, bool) {
	if id.kind != KindString {
		return "", false
	}
	return id.s, true
}

func (id Identifier) IntValue() (int64, bool) {
	if id.kind != KindInt {
		return 0, false
	}
	return id.i, true
}

func (id Identifier) Equal(other Identifier) bool {
	return id == other
}

// Compare orders identifiers by kind first, then by value.
func (id Identifier) Compare(other Identifier) int {
	if id.kind != other.kind {
		if id.kind < other.kind {
			return -1
		}
		return 1
	}
	switch id.kind {
	case KindString:
		return strings.Compare(id.s, other.s)
	case KindInt:
		switch {
		case id.i < other.i:
			return -1
		case id.i > other.i:
			return 1
		}
	}
	return 0
}

// String returns the display form: "s:<value>" or "i:<value>".
func (id Identifier) String() string {
	switch id.kind {
	case KindString:
		return "s:" + id.s
	case KindInt:
		return "i:" + strconv.FormatInt(id.i, 10)
	default:
		return ""
	}
}

// Parse reads the display form produced by String.
func Parse(text string) (Identifier, error) {
	prefix, value, ok := strings.Cut(text, ":")
	if !ok {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, text)
	}
	switch prefix {
	case "s":
		return NewString(value), nil
	case "i":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Identifier{}, fmt.Errorf("%w: %q: %w", ErrInvalidIdentifier, text, err)
		}
		return NewInt(n), nil
	default:
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, text)
	}
}

func ParseMust(text string) Identifier {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

// SQL driver value. The column must be declared without a type so SQLite
// keeps TEXT and INTEGER storage classes apart.
func (id Identifier) Value() (driver.Value, error) {
	switch id.kind {
	case KindString:
		return id.s, nil
	case KindInt:
		return id.i, nil
	default:
		return nil, nil
	}
}

func (id *Identifier) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*id = Identifier{}
	case string:
		*id = NewString(v)
	case []byte:
		*id = NewString(string(v))
	case int64:
		*id = NewInt(v)
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrInvalidIdentifier, value)
	}
	return nil
}
