package keyword

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	r := NewRegistry(false)

	id1, created := r.Register("Python", "lang")
	require.True(t, created)
	assert.Equal(t, 0, id1)

	id2, created := r.Register("python", "other")
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	id3, _ := r.Register("北京", "city")
	assert.Equal(t, 1, id3)
	assert.Equal(t, 2, r.Len())

	kw, ok := r.Get(id1)
	require.True(t, ok)
	assert.Equal(t, "Python", kw.Text)
	assert.Equal(t, "lang", kw.Category)
	assert.False(t, kw.CreatedAt.IsZero())
}

func TestRegister_CaseSensitiveKeepsBoth(t *testing.T) {
	r := NewRegistry(true)
	a, _ := r.Register("ABC", "")
	b, _ := r.Register("abc", "")
	assert.NotEqual(t, a, b)

	kw, _ := r.Get(a)
	assert.Equal(t, DefaultCategory, kw.Category)

	// folding back to insensitive: lowest ID owns the key
	r.SetCaseSensitive(false)
	id, ok := r.Lookup("Abc")
	require.True(t, ok)
	assert.Equal(t, a, id)
	assert.Equal(t, 2, r.Len())
}

func TestRegister_EmptyRejected(t *testing.T) {
	r := NewRegistry(false)
	id, created := r.Register("", "x")
	assert.Equal(t, -1, id)
	assert.False(t, created)
	assert.Equal(t, 0, r.Len())

	for _, blank := range []string{" ", "\t", " \n\u3000"} {
		id, created = r.Register(blank, "x")
		assert.Equal(t, -1, id, "%q", blank)
		assert.False(t, created)
	}
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.NextID())
}

func TestRestore_GapWithinBound(t *testing.T) {
	r, err := Restore([]Keyword{{ID: 0, Text: "a"}}, 1+MaxIDGap, false)
	require.NoError(t, err)
	id, _ := r.Register("b", "")
	assert.Equal(t, 1+MaxIDGap, id)
}

func TestRegisterMany(t *testing.T) {
	r := NewRegistry(false)
	ids := r.RegisterMany([]Entry{{Text: "a"}, {Text: "b"}, {Text: "A"}})
	assert.Equal(t, []int{0, 1, 0}, ids)
}

func TestAll_Lexicographic(t *testing.T) {
	r := NewRegistry(false)
	r.RegisterMany([]Entry{{Text: "zeta"}, {Text: "alpha"}, {Text: "mid"}})
	var got []string
	for _, kw := range r.All() {
		got = append(got, kw.Text)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, got)

	byID := r.ByID()
	assert.Equal(t, "zeta", byID[0].Text)
}

func TestClear_ResetsIDs(t *testing.T) {
	r := NewRegistry(false)
	r.Register("one", "")
	r.Register("two", "")
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.NextID())

	id, _ := r.Register("three", "")
	assert.Equal(t, 0, id)
	_, ok := r.Lookup("one")
	assert.False(t, ok)
}

func TestRestore(t *testing.T) {
	items := []Keyword{{ID: 1, Text: "b"}, {ID: 0, Text: "a", Category: "x"}}
	r, err := Restore(items, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	id, ok := r.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	// next_id is authoritative: ID 2 is never handed out again
	id, created := r.Register("c", "")
	assert.True(t, created)
	assert.Equal(t, 3, id)
	kw, ok := r.Get(3)
	require.True(t, ok)
	assert.Equal(t, "c", kw.Text)
	_, ok = r.Get(2)
	assert.False(t, ok)
}

func TestRestore_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		items []Keyword
		next  int
	}{
		{"id beyond next", []Keyword{{ID: 2, Text: "a"}}, 2},
		{"duplicate id", []Keyword{{ID: 0, Text: "a"}, {ID: 0, Text: "b"}}, 1},
		{"negative next", nil, -1},
		{"empty text", []Keyword{{ID: 0}}, 1},
		{"blank text", []Keyword{{ID: 0, Text: " \t"}}, 1},
		{"next far ahead", []Keyword{{ID: 0, Text: "a"}}, math.MaxInt},
		{"next just past gap", []Keyword{{ID: 0, Text: "a"}}, 1 + MaxIDGap + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Restore(tc.items, tc.next, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptRegistry))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "abc", Fold("ABC"))
	assert.Equal(t, "strasse", Fold("STRAßE"))
	assert.Equal(t, "ss", Fold("ß"))
	assert.Equal(t, "北京", Fold("北京"))
	assert.Equal(t, "a", FoldRune('A'))
	assert.Equal(t, "ss", FoldRune('ß'))
}
