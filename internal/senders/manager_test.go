package senders

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestObserve_Counts(t *testing.T) {
	m := New(0)
	m.Observe("alice", false, t0)
	m.Observe("alice", true, t0.Add(time.Minute))
	m.Observe(" alice ", true, t0.Add(30*time.Second))
	m.Observe("", true, t0)

	rec, ok := m.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Messages)
	assert.Equal(t, 2, rec.Flagged)
	assert.Equal(t, t0.Add(time.Minute), rec.LastSeen, "out-of-order observation keeps the latest time")
	assert.Equal(t, t0.Add(time.Minute), rec.LastFlagged)
	assert.Equal(t, 1, m.Len())
}

func TestObserve_ZeroTimeUsesClock(t *testing.T) {
	m := New(0)
	m.now = func() time.Time { return t0 }
	m.Observe("bob", false, time.Time{})
	rec, _ := m.Get("bob")
	assert.Equal(t, t0, rec.LastSeen)
	assert.True(t, rec.LastFlagged.IsZero())
}

func TestList_OrderAndFilter(t *testing.T) {
	m := New(0)
	m.Observe("old", true, t0)
	m.Observe("clean", false, t0.Add(2*time.Minute))
	m.Observe("new", true, t0.Add(time.Minute))
	m.Observe("tie", false, t0.Add(2*time.Minute))

	users := func(rs []Record) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.User)
		}
		return out
	}
	assert.Equal(t, []string{"clean", "tie", "new", "old"}, users(m.List(0, false)))
	assert.Equal(t, []string{"clean", "tie"}, users(m.List(2, false)))
	assert.Equal(t, []string{"new", "old"}, users(m.List(0, true)))
}

func TestCleanup(t *testing.T) {
	m := New(time.Hour)
	m.now = func() time.Time { return t0.Add(2 * time.Hour) }
	m.Observe("stale", false, t0)
	m.Observe("fresh", false, t0.Add(90*time.Minute))

	assert.Equal(t, 1, m.Cleanup(0))
	_, ok := m.Get("stale")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Cleanup(3*time.Hour))
	assert.Equal(t, 0, New(0).Cleanup(0))
}

func TestObserve_Concurrent(t *testing.T) {
	m := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Observe("u", j%2 == 0, t0)
				_ = m.List(5, false)
			}
		}()
	}
	wg.Wait()
	rec, _ := m.Get("u")
	assert.Equal(t, 800, rec.Messages)
	assert.Equal(t, 400, rec.Flagged)
}
