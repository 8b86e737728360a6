package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/pkg/keyword"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func texts(rs []Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Text)
	}
	return out
}

func TestSQLite_Keywords(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	added, err := s.AddKeyword(ctx, "spam", "")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddKeyword(ctx, "spam", "fraud")
	require.NoError(t, err)
	assert.False(t, added, "insert-or-ignore")

	_, err = s.AddKeyword(ctx, "   ", "")
	assert.ErrorIs(t, err, matcher.ErrEmptyKeyword)

	n, err := s.AddKeywords(ctx, []keyword.Entry{
		{Text: "北京", Category: "city"},
		{Text: "spam"},
		{Text: ""},
		{Text: "免费领取", Category: "fraud"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.ListKeywords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"spam", "免费领取", "北京"}, texts(all))
	assert.Equal(t, keyword.DefaultCategory, all[0].Category)
	assert.False(t, all[0].CreatedAt.IsZero())

	found, err := s.SearchKeywords(ctx, "领")
	require.NoError(t, err)
	assert.Equal(t, []string{"免费领取"}, texts(found))
	found, err = s.SearchKeywords(ctx, "%am")
	require.NoError(t, err)
	assert.Equal(t, []string{"spam"}, texts(found))

	ok, err := s.KeywordExists(ctx, "北京")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.KeywordExists(ctx, "上海")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := s.RemoveKeyword(ctx, "北京")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveKeyword(ctx, "北京")
	require.NoError(t, err)
	assert.False(t, removed)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Keywords)
	assert.Equal(t, map[string]int{"keyword": 1, "fraud": 1}, st.ByCategory)

	cleared, err := s.ClearKeywords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	all, err = s.ListKeywords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLite_LoadIntoMatcher(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	_, err := s.AddKeywords(ctx, []keyword.Entry{{Text: "python", Category: "lang"}, {Text: "北京", Category: "city"}})
	require.NoError(t, err)

	recs, err := s.ListKeywords(ctx)
	require.NoError(t, err)
	m := matcher.New(matcher.DefaultConfig(), nil)
	m.AddKeywords(Entries(recs))
	assert.Equal(t, "I love [***] and [***]", m.Replace("I love Python and 北京", ""))
}

func TestSQLite_Detections(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	m := matcher.New(matcher.DefaultConfig(), nil)
	_, _ = m.AddKeyword("北京", "city")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ds []detect.Detection
	for i := 0; i < 3; i++ {
		text := fmt.Sprintf("msg %d 北京", i)
		ds = append(ds, detect.Detection{
			ID:         fmt.Sprintf("id-%d", i),
			User:       "alice",
			Message:    text,
			Redacted:   m.Replace(text, ""),
			Matches:    m.SearchAll(text),
			DetectedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	n, err := s.InsertDetections(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.ListDetections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-2", got[0].ID)
	assert.Equal(t, "id-1", got[1].ID)
	assert.Equal(t, "msg 2 [***]", got[0].Redacted)
	require.Len(t, got[0].Matches, 1)
	assert.Equal(t, matcher.KindExact, got[0].Matches[0].Kind)
	assert.Equal(t, "北京", got[0].Matches[0].Keyword.Text)
	assert.True(t, got[0].DetectedAt.Equal(base.Add(2*time.Minute)))

	all, err := s.ListDetections(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.InsertDetections(ctx, []detect.Detection{{
		ID: "yesterday", Message: "old", Redacted: "old", DetectedAt: base.Add(-20 * time.Hour),
	}})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(5 * time.Hour) }
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Detections)
	assert.Equal(t, 3, st.Today)
}

func TestSQLite_BatchSaverWritesThrough(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	b := detect.NewBatchSaver(s, 2, 0, nil, nil)

	require.NoError(t, b.Add(ctx, detect.Detection{ID: "a", Message: "x", Redacted: "x", DetectedAt: time.Now()}))
	require.NoError(t, b.Add(ctx, detect.Detection{ID: "b", Message: "y", Redacted: "y", DetectedAt: time.Now()}))

	got, err := s.ListDetections(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kw.db")
	s, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()), "migrations are idempotent")
	_, err = s.AddKeyword(context.Background(), "persist", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()
	ok, err := s.KeywordExists(context.Background(), "persist")
	require.NoError(t, err)
	assert.True(t, ok)
}
