// Package senders tracks per-user message activity in memory.
package senders

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is the activity of one sender.
type Record struct {
	User        string    `json:"user"`
	Messages    int       `json:"messages"`
	Flagged     int       `json:"flagged"`
	LastSeen    time.Time `json:"last_seen"`
	LastFlagged time.Time `json:"last_flagged,omitempty"`
}

// Manager keeps sender records with concurrent access protection
type Manager struct {
	mu         sync.RWMutex
	items      map[string]Record
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a manager whose Cleanup(0) drops senders idle for ttl.
func New(ttl time.Duration) *Manager {
	return &Manager{items: make(map[string]Record), defaultTTL: ttl, now: time.Now}
}

// Observe counts one message from user. Anonymous messages are ignored.
func (m *Manager) Observe(user string, flagged bool, at time.Time) {
	user = strings.TrimSpace(user)
	if user == "" {
		return
	}
	if at.IsZero() {
		at = m.now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.items[user]
	rec.User = user
	rec.Messages++
	if at.After(rec.LastSeen) {
		rec.LastSeen = at
	}
	if flagged {
		rec.Flagged++
		if at.After(rec.LastFlagged) {
			rec.LastFlagged = at
		}
	}
	m.items[user] = rec
}

func (m *Manager) Get(user string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.items[user]
	return r, ok
}

// List returns up to limit senders, most recently seen first. With
// flaggedOnly it skips senders without a flagged message.
func (m *Manager) List(limit int, flaggedOnly bool) []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.items))
	for _, v := range m.items {
		if flaggedOnly && v.Flagged == 0 {
			continue
		}
		out = append(out, v)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].User < out[j].User
	})
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Cleanup removes senders not seen within ttl (if ttl <= 0 uses the
// default; if both are 0, no-op).
func (m *Manager) Cleanup(ttl time.Duration) int {
	effective := ttl
	if effective <= 0 {
		effective = m.defaultTTL
	}
	if effective <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-effective)
	removed := 0
	m.mu.Lock()
	for k, v := range m.items {
		if v.LastSeen.Before(cutoff) {
			delete(m.items, k)
			removed++
		}
	}
	m.mu.Unlock()
	return removed
}
