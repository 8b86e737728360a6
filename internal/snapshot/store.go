// Package snapshot keeps named matcher states in a bbolt database. Each
// snapshot is one JSON value in the "snapshots" bucket; writes are
// transactional, so a crash mid-write keeps the previous snapshot.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

var ErrNotFound = errors.New("snapshot not found")

var bucketSnapshots = []byte("snapshots")

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Entry is a stored snapshot.
type Entry struct {
	Name    string        `json:"name"`
	SavedAt time.Time     `json:"saved_at"`
	State   matcher.State `json:"state"`
}

// Info describes a snapshot without its state.
type Info struct {
	Name     string    `json:"name"`
	SavedAt  time.Time `json:"saved_at"`
	Keywords int       `json:"keywords"`
	Patterns int       `json:"patterns"`
}

// Open opens (or creates) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores st under name, replacing any previous snapshot.
func (s *Store) Put(name string, st matcher.State) error {
	if name == "" {
		return fmt.Errorf("empty snapshot name")
	}
	b, err := json.Marshal(Entry{Name: name, SavedAt: s.now().UTC(), State: st})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(name), b)
	})
}

func (s *Store) Get(name string) (Entry, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		// bbolt slices are only valid within tx
		raw = make([]byte, len(v))
		copy(raw, v)
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("snapshot %q: %w", name, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal snapshot %q: %w", name, err)
	}
	return e, nil
}

// List returns all snapshots ordered by name.
func (s *Store) List() ([]Info, error) {
	var out []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal snapshot %q: %w", k, err)
			}
			out = append(out, Info{
				Name:     string(k),
				SavedAt:  e.SavedAt,
				Keywords: len(e.State.Keywords),
				Patterns: len(e.State.Patterns),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("snapshot %q: %w", name, ErrNotFound)
		}
		return b.Delete([]byte(name))
	})
}

// Save stores the matcher's current state under name.
func (s *Store) Save(name string, m *matcher.Matcher) error {
	return s.Put(name, m.State())
}

// Restore loads snapshot name into m. On error m is unchanged.
func (s *Store) Restore(name string, m *matcher.Matcher) error {
	e, err := s.Get(name)
	if err != nil {
		return err
	}
	return m.Restore(e.State)
}
