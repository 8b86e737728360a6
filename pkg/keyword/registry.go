package keyword

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrCorruptRegistry is returned by Restore when the keyword list cannot
// be laid out in an ID-indexed arena.
var ErrCorruptRegistry = errors.New("corrupt keyword registry")

// MaxIDGap bounds how far a restored next ID may run ahead of the stored
// keywords. The arena is sized from it.
const MaxIDGap = 1 << 16

// Registry owns the canonical keyword records. Records live in an arena
// indexed by ID; the text -> ID lookup is derived and rebuilt on demand.
//
// A Registry is not safe for concurrent use; the matcher guards it.
type Registry struct {
	items         []*Keyword // index == ID, nil for IDs never assigned
	count         int
	nextID        int
	caseSensitive bool

	lookup      map[string]int
	lookupStale bool

	now func() time.Time
}

func NewRegistry(caseSensitive bool) *Registry {
	return &Registry{
		caseSensitive: caseSensitive,
		lookup:        make(map[string]int),
		now:           time.Now,
	}
}

// Restore rebuilds a registry from persisted records. IDs must be unique,
// non-negative and below nextID, and nextID may exceed the number of
// records by at most MaxIDGap.
func Restore(items []Keyword, nextID int, caseSensitive bool) (*Registry, error) {
	r := NewRegistry(caseSensitive)
	if nextID < 0 {
		return nil, fmt.Errorf("%w: negative next id %d", ErrCorruptRegistry, nextID)
	}
	if nextID-len(items) > MaxIDGap {
		return nil, fmt.Errorf("%w: next id %d too far beyond %d keywords", ErrCorruptRegistry, nextID, len(items))
	}
	r.items = make([]*Keyword, nextID)
	for _, it := range items {
		if it.ID < 0 || it.ID >= nextID {
			return nil, fmt.Errorf("%w: id %d outside [0,%d)", ErrCorruptRegistry, it.ID, nextID)
		}
		if r.items[it.ID] != nil {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrCorruptRegistry, it.ID)
		}
		if IsBlank(it.Text) {
			return nil, fmt.Errorf("%w: empty text for id %d", ErrCorruptRegistry, it.ID)
		}
		kw := it
		if kw.Category == "" {
			kw.Category = DefaultCategory
		}
		r.items[it.ID] = &kw
		r.count++
	}
	r.nextID = nextID
	r.lookupStale = true
	return r, nil
}

// IsBlank reports text that is empty or only whitespace.
func IsBlank(text string) bool { return strings.TrimSpace(text) == "" }

// Key is the identity of text under the registry's case mode.
func (r *Registry) Key(text string) string {
	if r.caseSensitive {
		return text
	}
	return Fold(text)
}

// Register adds text and returns its ID. An already registered
// (normalized) text returns the existing ID and created=false.
// Empty or whitespace-only text is rejected with id -1.
func (r *Registry) Register(text, category string) (id int, created bool) {
	if IsBlank(text) {
		return -1, false
	}
	r.ensureLookup()
	key := r.Key(text)
	if id, ok := r.lookup[key]; ok {
		return id, false
	}
	if category == "" {
		category = DefaultCategory
	}
	id = r.nextID
	r.nextID++
	r.items = append(r.items, &Keyword{
		ID:        id,
		Text:      text,
		Category:  category,
		CreatedAt: r.now(),
	})
	r.count++
	r.lookup[key] = id
	return id, true
}

// RegisterMany registers entries in order and returns their IDs.
func (r *Registry) RegisterMany(entries []Entry) []int {
	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		id, _ := r.Register(e.Text, e.Category)
		ids = append(ids, id)
	}
	return ids
}

// Get returns the keyword with the given ID.
func (r *Registry) Get(id int) (Keyword, bool) {
	if id < 0 || id >= len(r.items) || r.items[id] == nil {
		return Keyword{}, false
	}
	return *r.items[id], true
}

// Lookup finds the ID registered for text under the current case mode.
func (r *Registry) Lookup(text string) (int, bool) {
	r.ensureLookup()
	id, ok := r.lookup[r.Key(text)]
	return id, ok
}

// All returns every keyword ordered by text, ties by ID.
func (r *Registry) All() []Keyword {
	out := make([]Keyword, 0, r.count)
	for _, kw := range r.items {
		if kw != nil {
			out = append(out, *kw)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ByID returns every keyword ordered by ID.
func (r *Registry) ByID() []Keyword {
	out := make([]Keyword, 0, r.count)
	for _, kw := range r.items {
		if kw != nil {
			out = append(out, *kw)
		}
	}
	return out
}

func (r *Registry) Len() int { return r.count }

func (r *Registry) NextID() int { return r.nextID }

func (r *Registry) CaseSensitive() bool { return r.caseSensitive }

// SetCaseSensitive switches identity normalization. Switching to
// case-insensitive may map several records to one key; the lowest ID wins.
func (r *Registry) SetCaseSensitive(on bool) {
	if r.caseSensitive == on {
		return
	}
	r.caseSensitive = on
	r.lookupStale = true
}

// Clear drops every record and resets the ID counter to zero.
func (r *Registry) Clear() {
	r.items = nil
	r.count = 0
	r.nextID = 0
	r.lookup = make(map[string]int)
	r.lookupStale = false
}

func (r *Registry) ensureLookup() {
	if !r.lookupStale {
		return
	}
	r.lookup = make(map[string]int, r.count)
	for _, kw := range r.items {
		if kw == nil {
			continue
		}
		key := r.Key(kw.Text)
		if _, ok := r.lookup[key]; !ok {
			r.lookup[key] = kw.ID
		}
	}
	r.lookupStale = false
}
