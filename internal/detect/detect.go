// Package detect inspects chat messages with a matcher and hands the
// resulting detections to a sink.
package detect

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// Message is one incoming chat message.
type Message struct {
	User       string    `json:"user"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Detection is a message with at least one match.
type Detection struct {
	ID         string                `json:"id"`
	User       string                `json:"user"`
	Message    string                `json:"message"`
	Redacted   string                `json:"redacted"`
	Matches    []matcher.MatchResult `json:"matches"`
	DetectedAt time.Time             `json:"detected_at"`
}

// Sources lists the distinct keywords and patterns behind the matches, in
// match order.
func (d Detection) Sources() []string {
	seen := make(map[string]struct{}, len(d.Matches))
	out := make([]string, 0, len(d.Matches))
	for _, m := range d.Matches {
		s := m.Source()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Searcher is the part of *matcher.Matcher the detector needs.
type Searcher interface {
	SearchAll(text string) []matcher.MatchResult
}

// Sink receives detections.
type Sink interface {
	Add(ctx context.Context, d Detection) error
}

type Options struct {
	// Messages are truncated to this many runes. 0 = no limit.
	MaxMessageLength int
	// "" = matcher.DefaultPlaceholder
	Placeholder string
}

type Detector struct {
	m       Searcher
	sink    Sink // may be nil
	opts    Options
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewDetector(m Searcher, sink Sink, opts Options, log *zap.Logger, metrics *Metrics) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if opts.Placeholder == "" {
		opts.Placeholder = matcher.DefaultPlaceholder
	}
	return &Detector{m: m, sink: sink, opts: opts, log: log, metrics: metrics, now: time.Now}
}

// Inspect searches msg and reports a detection when anything matched. The
// detection is forwarded to the sink; a sink error is logged and returned
// with the detection.
func (d *Detector) Inspect(ctx context.Context, msg Message) (Detection, bool, error) {
	d.metrics.MessagesInspected.Inc()
	text := Truncate(msg.Text, d.opts.MaxMessageLength)

	matches := d.m.SearchAll(text)
	if len(matches) == 0 {
		return Detection{}, false, nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	det := Detection{
		ID:         uuid.NewString(),
		User:       msg.User,
		Message:    text,
		Redacted:   matcher.Splice(text, matcher.Resolve(matches), d.opts.Placeholder),
		Matches:    matches,
		DetectedAt: d.now().UTC(),
	}

	d.metrics.Detections.Inc()
	for _, m := range matches {
		d.metrics.Matches.WithLabelValues(m.Kind.String()).Inc()
	}
	d.log.Info("message flagged",
		zap.String("id", det.ID),
		zap.String("user", det.User),
		zap.Int("matches", len(matches)),
		zap.Strings("sources", det.Sources()))

	if d.sink != nil {
		if err := d.sink.Add(ctx, det); err != nil {
			d.log.Error("sink rejected detection", zap.String("id", det.ID), zap.Error(err))
			return det, true, err
		}
	}
	return det, true, nil
}

// Truncate cuts s to at most n runes. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := 0
	for off := range s {
		if i == n {
			return s[:off]
		}
		i++
	}
	return s
}
