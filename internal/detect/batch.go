package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Saver persists detections and reports how many were written.
type Saver interface {
	InsertDetections(ctx context.Context, ds []Detection) (int, error)
}

// BatchStats is a snapshot of BatchSaver counters.
type BatchStats struct {
	Saved    int       `json:"saved"`
	Buffered int       `json:"buffered"`
	Flushes  int       `json:"flushes"`
	Errors   int       `json:"errors"`
	LastSave time.Time `json:"last_save"`
}

// BatchSaver buffers detections and writes them in batches: when the
// buffer reaches size, every interval (after Start), and on Close. A failed
// write keeps the batch for the next attempt.
type BatchSaver struct {
	saver    Saver
	size     int
	interval time.Duration
	log      *zap.Logger
	metrics  *Metrics

	mu    sync.Mutex
	buf   []Detection
	stats BatchStats

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	started   bool
}

var ErrClosed = errors.New("batch saver closed")

func NewBatchSaver(saver Saver, size int, interval time.Duration, log *zap.Logger, metrics *Metrics) *BatchSaver {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &BatchSaver{
		saver:    saver,
		size:     size,
		interval: interval,
		log:      log,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the interval flush until ctx is done or Close is called.
func (b *BatchSaver) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.mu.Lock()
		b.started = true
		b.mu.Unlock()
		go b.loop(ctx)
	})
}

func (b *BatchSaver) loop(ctx context.Context) {
	defer close(b.done)
	if b.interval <= 0 {
		select {
		case <-ctx.Done():
		case <-b.stop:
		}
		return
	}
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-t.C:
			if _, err := b.Flush(ctx); err != nil {
				b.log.Error("interval flush failed", zap.Error(err))
			}
		}
	}
}

// Add buffers d and flushes when the batch is full.
func (b *BatchSaver) Add(ctx context.Context, d Detection) error {
	select {
	case <-b.stop:
		return ErrClosed
	default:
	}
	b.mu.Lock()
	b.buf = append(b.buf, d)
	n := len(b.buf)
	b.metrics.Buffered.Set(float64(n))
	b.mu.Unlock()

	if n >= b.size {
		if _, err := b.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes everything buffered now.
func (b *BatchSaver) Flush(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return 0, nil
	}

	n, err := b.saver.InsertDetections(ctx, b.buf)
	if err != nil {
		b.stats.Errors++
		b.metrics.FlushErrors.Inc()
		return 0, fmt.Errorf("flush %d detections: %w", len(b.buf), err)
	}

	b.log.Debug("detections flushed", zap.Int("count", n))
	b.buf = nil
	b.stats.Saved += n
	b.stats.Flushes++
	b.stats.LastSave = time.Now()
	b.metrics.Flushes.Inc()
	b.metrics.Saved.Add(float64(n))
	b.metrics.Buffered.Set(0)
	return n, nil
}

// Close stops the interval flush and writes what is left.
func (b *BatchSaver) Close(ctx context.Context) (int, error) {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.mu.Lock()
		started := b.started
		b.mu.Unlock()
		if started {
			<-b.done
		}
	})
	n, err := b.Flush(ctx)
	b.log.Info("batch saver stopped", zap.Int("final_flush", n), zap.Error(err))
	return n, err
}

func (b *BatchSaver) Stats() BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Buffered = len(b.buf)
	return s
}
