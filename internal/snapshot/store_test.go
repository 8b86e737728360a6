package snapshot

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveRestore(t *testing.T) {
	s := openTemp(t)
	src := matcher.New(matcher.DefaultConfig(), nil)
	_, _ = src.AddKeyword("北京", "city")
	require.NoError(t, src.AddPattern(`\d{3}-\d{4}`, "phone", matcher.PatternFlags{}))
	require.NoError(t, src.EnableFuzzy(2))

	require.NoError(t, s.Save("prod", src))

	dst := matcher.New(matcher.DefaultConfig(), nil)
	require.NoError(t, s.Restore("prod", dst))
	text := "call 555-1234 in 北京"
	assert.Equal(t, src.Replace(text, ""), dst.Replace(text, ""))
	enabled, max := dst.Fuzzy()
	assert.True(t, enabled)
	assert.Equal(t, 2, max)
}

func TestGet_NotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	m := matcher.New(matcher.DefaultConfig(), nil)
	_, _ = m.AddKeyword("keep", "")
	assert.True(t, errors.Is(s.Restore("nope", m), ErrNotFound))
	assert.Equal(t, 1, m.Size())

	assert.True(t, errors.Is(s.Delete("nope"), ErrNotFound))
}

func TestListAndDelete(t *testing.T) {
	s := openTemp(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	m := matcher.New(matcher.DefaultConfig(), nil)
	_, _ = m.AddKeyword("a", "")
	require.NoError(t, s.Save("b-snap", m))
	_, _ = m.AddKeyword("b", "")
	require.NoError(t, s.Save("a-snap", m))
	require.Error(t, s.Put("", m.State()))

	infos, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Name: "a-snap", SavedAt: at, Keywords: 2},
		{Name: "b-snap", SavedAt: at, Keywords: 1},
	}, infos)

	require.NoError(t, s.Delete("a-snap"))
	infos, err = s.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "b-snap", infos[0].Name)
}

func TestReopenKeepsSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	require.NoError(t, err)
	m := matcher.New(matcher.DefaultConfig(), nil)
	_, _ = m.AddKeyword("persist", "")
	require.NoError(t, s.Save("x", m))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	e, err := s.Get("x")
	require.NoError(t, err)
	require.Len(t, e.State.Keywords, 1)
	assert.Equal(t, "persist", e.State.Keywords[0].Text)
	assert.Equal(t, 1, e.State.NextID)
}
