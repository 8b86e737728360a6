// Package store persists keywords and detections in Postgres or SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/pkg/keyword"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

var ErrUnsupportedDriver = errors.New("unsupported store driver")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultDetectionLimit = 100
	MaxDetectionLimit     = 1000
)

type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects with database/sql. SQLite is limited to one connection so
// ":memory:" databases are shared by every query.
func Open(driver, dsn string) (*Store, error) {
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return New(db, driver)
}

// New wraps an existing handle.
func New(db *sql.DB, driver string) (*Store, error) {
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver, now: time.Now}, nil
}

func checkDriver(driver string) error {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error { return s.db.Close() }

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(q[i])
	}
	return sb.String()
}

// ---- Keywords ----

// Record is a stored keyword row.
type Record struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Record) Entry() keyword.Entry { return keyword.Entry{Text: r.Text, Category: r.Category} }

// Entries converts records for Matcher.AddKeywords.
func Entries(rs []Record) []keyword.Entry {
	out := make([]keyword.Entry, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Entry())
	}
	return out
}

const insertKeywordSQL = `INSERT INTO keywords(keyword, category, created_at) VALUES (?,?,?) ON CONFLICT (keyword) DO NOTHING`

// AddKeyword inserts text unless it already exists. It reports whether a
// row was added.
func (s *Store) AddKeyword(ctx context.Context, text, category string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, matcher.ErrEmptyKeyword
	}
	if category == "" {
		category = keyword.DefaultCategory
	}
	res, err := s.db.ExecContext(ctx, s.rebind(insertKeywordSQL), text, category, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert keyword %q: %w", text, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddKeywords inserts entries in one transaction and returns how many rows
// were new. Blank entries are skipped.
func (s *Store) AddKeywords(ctx context.Context, entries []keyword.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertKeywordSQL))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	count := 0
	for _, e := range entries {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		cat := e.Category
		if cat == "" {
			cat = keyword.DefaultCategory
		}
		res, err := stmt.ExecContext(ctx, text, cat, now)
		if err != nil {
			return 0, fmt.Errorf("insert keyword %q: %w", text, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			count++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

func (s *Store) RemoveKeyword(ctx context.Context, text string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM keywords WHERE keyword = ?`), text)
	if err != nil {
		return false, fmt.Errorf("delete keyword %q: %w", text, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListKeywords returns every keyword ordered by text.
func (s *Store) ListKeywords(ctx context.Context) ([]Record, error) {
	return s.queryKeywords(ctx, `SELECT id, keyword, category, created_at FROM keywords ORDER BY keyword`)
}

// SearchKeywords runs a LIKE query. A pattern without a leading % is
// wrapped as %pattern%.
func (s *Store) SearchKeywords(ctx context.Context, pattern string) ([]Record, error) {
	if !strings.HasPrefix(pattern, "%") {
		pattern = "%" + pattern + "%"
	}
	return s.queryKeywords(ctx, `SELECT id, keyword, category, created_at FROM keywords WHERE keyword LIKE ? ORDER BY keyword`, pattern)
}

func (s *Store) queryKeywords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Text, &r.Category, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) KeywordExists(ctx context.Context, text string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM keywords WHERE keyword = ? LIMIT 1`), text).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("keyword exists %q: %w", text, err)
	}
	return true, nil
}

// ClearKeywords deletes every keyword and returns how many were removed.
func (s *Store) ClearKeywords(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM keywords`)
	if err != nil {
		return 0, fmt.Errorf("clear keywords: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ---- Detections ----

const insertDetectionSQL = `INSERT INTO detections(id, user_name, message, redacted, matches, detected_at) VALUES (?,?,?,?,?,?)`

// InsertDetections writes ds in one transaction. It implements
// detect.Saver.
func (s *Store) InsertDetections(ctx context.Context, ds []detect.Detection) (int, error) {
	if len(ds) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertDetectionSQL))
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range ds {
		b, err := json.Marshal(d.Matches)
		if err != nil {
			return 0, fmt.Errorf("encode matches for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.User, d.Message, d.Redacted, string(b), d.DetectedAt.UTC()); err != nil {
			return 0, fmt.Errorf("insert detection %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ds), nil
}

// ListDetections returns the newest detections first. limit is clamped to
// [1, MaxDetectionLimit]; <= 0 means DefaultDetectionLimit.
func (s *Store) ListDetections(ctx context.Context, limit int) ([]detect.Detection, error) {
	switch {
	case limit <= 0:
		limit = DefaultDetectionLimit
	case limit > MaxDetectionLimit:
		limit = MaxDetectionLimit
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, user_name, message, redacted, matches, detected_at FROM detections ORDER BY detected_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()
	out := []detect.Detection{}
	for rows.Next() {
		var d detect.Detection
		var raw []byte
		if err := rows.Scan(&d.ID, &d.User, &d.Message, &d.Redacted, &raw, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if err := json.Unmarshal(raw, &d.Matches); err != nil {
			return nil, fmt.Errorf("decode matches for %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats counts stored rows.
type Stats struct {
	Keywords   int            `json:"keywords"`
	Detections int            `json:"detections"`
	Today      int            `json:"today_detections"`
	ByCategory map[string]int `json:"by_category"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByCategory: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords`).Scan(&st.Keywords); err != nil {
		return st, fmt.Errorf("count keywords: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&st.Detections); err != nil {
		return st, fmt.Errorf("count detections: %w", err)
	}
	// detected_at is stored in UTC, so the day boundary is UTC midnight.
	midnight := s.now().UTC().Truncate(24 * time.Hour)
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM detections WHERE detected_at >= ?`), midnight).Scan(&st.Today); err != nil {
		return st, fmt.Errorf("count today's detections: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM keywords GROUP BY category`)
	if err != nil {
		return st, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return st, err
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}
