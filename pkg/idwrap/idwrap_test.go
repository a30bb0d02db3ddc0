package idwrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierKindsNeverEqual(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, NewString("a"), NewInt(0))
	assert.NotEqual(t, NewString("1"), NewInt(1))
	assert.False(t, NewString("1").Equal(NewInt(1)))
	assert.True(t, NewInt(7).Equal(NewInt(7)))
	assert.True(t, NewString("x") == NewString("x"))
}

func TestIdentifierAsMapKey(t *testing.T) {
	t.Parallel()

	m := map[Identifier]string{
		NewString("1"): "string",
		NewInt(1):      "int",
	}
	assert.Len(t, m, 2)
	assert.Equal(t, "string", m[NewString("1")])
	assert.Equal(t, "int", m[NewInt(1)])
}

func TestIdentifierAccessors(t *testing.T) {
	t.Parallel()

	s := NewString("acme")
	v, ok := s.StringValue()
	require.True(t, ok)
	assert.Equal(t, "acme", v)
	_, ok = s.IntValue()
	assert.False(t, ok)

	i := NewInt(42)
	n, ok := i.IntValue()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = i.StringValue()
	assert.False(t, ok)

	assert.True(t, Identifier{}.IsZero())
	assert.False(t, s.IsZero())
}

func TestGenerated(t *testing.T) {
	t.Parallel()

	for range 100 {
		id := NewRandomInt()
		n, ok := id.IntValue()
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(0))
	}

	a, b := NewUUID(), NewUUID()
	assert.Equal(t, KindString, a.Kind())
	assert.NotEqual(t, a, b)

	assert.Equal(t, KindInt, NewOfKind(KindInt).Kind())
	assert.Equal(t, KindString, NewOfKind(KindString).Kind())
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   Identifier
		text string
	}{
		{name: "string", id: NewString("abc"), text: "s:abc"},
		{name: "string with colon", id: NewString("a:b"), text: "s:a:b"},
		{name: "int", id: NewInt(-3), text: "i:-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.text, tt.id.String())
			parsed, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.id, parsed)
		})
	}

	_, err := Parse("nope")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = Parse("i:abc")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	_, err = Parse("x:1")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestScanValue(t *testing.T) {
	t.Parallel()

	v, err := NewInt(5).Value()
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = NewString("5").Value()
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	var id Identifier
	require.NoError(t, id.Scan(int64(9)))
	assert.Equal(t, NewInt(9), id)
	require.NoError(t, id.Scan([]byte("nine")))
	assert.Equal(t, NewString("nine"), id)
	require.NoError(t, id.Scan("nine"))
	assert.Equal(t, NewString("nine"), id)
	assert.Error(t, id.Scan(3.5))
}

func TestCompare(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, NewInt(1).Compare(NewInt(1)))
	assert.Equal(t, -1, NewInt(1).Compare(NewInt(2)))
	assert.Equal(t, 1, NewString("b").Compare(NewString("a")))
	assert.Equal(t, -1, NewString("z").Compare(NewInt(0)))
}
