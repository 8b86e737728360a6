// Package server exposes the matcher and the detection pipeline over HTTP.
package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/internal/rules"
	"github.com/PhucNguyen204/msgguard/internal/senders"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/keyword"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// maxBodyBytes bounds request bodies (after gzip decoding).
const maxBodyBytes = 4 << 20

// KeywordStore is the persistence the keyword and detection endpoints use.
// *store.Store implements it.
type KeywordStore interface {
	AddKeywords(ctx context.Context, entries []keyword.Entry) (int, error)
	ListKeywords(ctx context.Context) ([]store.Record, error)
	ListDetections(ctx context.Context, limit int) ([]detect.Detection, error)
	Stats(ctx context.Context) (store.Stats, error)
}

type AppServer struct {
	m        *matcher.Matcher
	detector *detect.Detector
	store    KeywordStore // may be nil
	senders  *senders.Manager
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// NewAppServer wires the handlers. st and gatherer may be nil; without a
// store the keyword list and detection history endpoints answer 503.
func NewAppServer(m *matcher.Matcher, det *detect.Detector, st KeywordStore, gatherer prometheus.Gatherer, log *zap.Logger) *AppServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AppServer{m: m, detector: det, store: st, senders: senders.New(0), gatherer: gatherer, log: log}
}

// SetSenders replaces the sender tracker, e.g. with one that has a TTL.
func (s *AppServer) SetSenders(m *senders.Manager) { s.senders = m }

func (s *AppServer) Senders() *senders.Manager { return s.senders }

// Router returns the HTTP handler with every route registered.
func (s *AppServer) Router() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *AppServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/scan", s.handleScan)
	mux.HandleFunc("/api/v1/redact", s.handleRedact)
	mux.HandleFunc("/api/v1/ingest", s.handleIngest)
	mux.HandleFunc("/api/v1/keywords", s.handleKeywords)
	mux.HandleFunc("/api/v1/rules", s.handleRules)
	mux.HandleFunc("/api/v1/detections", s.handleListDetections)
	mux.HandleFunc("/api/v1/senders", s.handleListSenders)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ---- Handlers ----

func (s *AppServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *AppServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"matcher": s.m.Stats()}
	if s.store != nil {
		st, err := s.store.Stats(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		resp["store"] = st
	}
	writeJSON(w, http.StatusOK, resp)
}

type textRequest struct {
	Text        string `json:"text"`
	Placeholder string `json:"placeholder,omitempty"`
}

func (s *AppServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	matches := s.m.SearchAll(req.Text)
	if matches == nil {
		matches = []matcher.MatchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *AppServer) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodePost(w, r, &req) {
		return
	}
	redacted, matches := s.m.Redact(req.Text, req.Placeholder)
	if matches == nil {
		matches = []matcher.MatchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"redacted": redacted, "matches": matches})
}

// handleIngest accepts one message object or an array of them, optionally
// gzip-encoded, and runs each through the detector.
func (s *AppServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := requestBody(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	defer body.Close()

	msgs, err := decodeMessages(body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	type result struct {
		Index     int               `json:"index"`
		Flagged   bool              `json:"flagged"`
		Detection *detect.Detection `json:"detection,omitempty"`
	}
	results := make([]result, 0, len(msgs))
	flagged := 0
	for i, msg := range msgs {
		d, ok, err := s.detector.Inspect(r.Context(), msg)
		if err != nil {
			// the detection is still reported; only persisting failed
			s.log.Error("detection sink failed", zap.Int("index", i), zap.Error(err))
		}
		s.senders.Observe(msg.User, ok, msg.ReceivedAt)
		res := result{Index: i, Flagged: ok}
		if ok {
			flagged++
			res.Detection = &d
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": len(msgs),
		"flagged":  flagged,
		"results":  results,
	})
}

// handleKeywords supports GET (list keywords) and POST (add keywords).
// POST body: {"keywords": [{"text": "...", "category": "..."}]}
func (s *AppServer) handleKeywords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.store == nil {
			writeJSON(w, http.StatusOK, s.m.Keywords())
			return
		}
		recs, err := s.store.ListKeywords(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	case http.MethodPost:
		var req struct {
			Keywords []keyword.Entry `json:"keywords"`
		}
		if !s.decodePost(w, r, &req) {
			return
		}
		if len(req.Keywords) == 0 {
			writeErr(w, http.StatusBadRequest, errors.New("keywords must not be empty"))
			return
		}
		stored := 0
		if s.store != nil {
			n, err := s.store.AddKeywords(r.Context(), req.Keywords)
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			stored = n
		}
		ids := s.m.AddKeywords(req.Keywords)
		s.log.Info("keywords added", zap.Int("requested", len(req.Keywords)), zap.Int("stored", stored))
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "stored": stored, "total": s.m.Size()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRules supports GET (current patterns) and POST (apply a YAML rule
// set on top of the running matcher).
func (s *AppServer) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"patterns": s.m.Patterns(), "keywords": s.m.Size()})
	case http.MethodPost:
		body, err := requestBody(r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		defer body.Close()
		b, err := io.ReadAll(body)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		rs, err := rules.LoadRuleYAML(b)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		rs.Source = "api"
		sum, err := rules.Apply(s.m, []rules.RuleSet{rs})
		resp := map[string]any{"keywords": sum.Keywords, "patterns": sum.Patterns, "skipped": sum.Skipped}
		if err != nil {
			resp["error"] = err.Error()
		}
		s.m.Build()
		writeJSON(w, http.StatusOK, resp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *AppServer) handleListDetections(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("no store configured"))
		return
	}
	limit := store.DefaultDetectionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	out, err := s.store.ListDetections(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if out == nil {
		out = []detect.Detection{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListSenders lists tracked senders, newest first.
// Query: limit (default 100), flagged=true to skip senders never flagged.
func (s *AppServer) handleListSenders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	flaggedOnly, _ := strconv.ParseBool(q.Get("flagged"))
	writeJSON(w, http.StatusOK, s.senders.List(limit, flaggedOnly))
}

// ---- Helpers ----

func (s *AppServer) decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	body, err := requestBody(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return false
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}
	return true
}

type readCloser struct {
	io.Reader
	close func() error
}

func (rc readCloser) Close() error { return rc.close() }

// requestBody unwraps gzip when Content-Encoding says so and caps the size.
func requestBody(r *http.Request) (io.ReadCloser, error) {
	if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		return readCloser{io.LimitReader(r.Body, maxBodyBytes), r.Body.Close}, nil
	}
	zr, err := gzip.NewReader(r.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	return readCloser{io.LimitReader(zr, maxBodyBytes), func() error {
		zr.Close()
		return r.Body.Close()
	}}, nil
}

func decodeMessages(r io.Reader) ([]detect.Message, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var msg detect.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		return []detect.Message{msg}, nil
	case strings.HasPrefix(trimmed, "["):
		var msgs []detect.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("invalid messages: %w", err)
		}
		return msgs, nil
	default:
		return nil, errors.New("payload must be object or array of objects")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
