package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/internal/senders"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// pipeline is a detector whose detections are batched into the store.
type pipeline struct {
	registry *prometheus.Registry
	detector *detect.Detector
	batch    *detect.BatchSaver // nil without a store
	senders  *senders.Manager
	log      *zap.Logger
}

func (a *app) newPipeline(ctx context.Context, m *matcher.Matcher, st *store.Store) *pipeline {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := detect.NewMetrics(reg)

	p := &pipeline{registry: reg, senders: senders.New(a.cfg.Server.SenderTTL), log: a.log}
	var sink detect.Sink
	if st != nil {
		p.batch = detect.NewBatchSaver(st, a.cfg.Batch.Size, a.cfg.Batch.FlushInterval, a.log.Named("batch"), metrics)
		p.batch.Start(ctx)
		sink = p.batch
	}
	p.detector = detect.NewDetector(m, sink, detect.Options{
		MaxMessageLength: a.cfg.Detect.MaxMessageLength,
		Placeholder:      a.cfg.Matcher.Placeholder,
	}, a.log.Named("detect"), metrics)
	return p
}

func (p *pipeline) inspect(ctx context.Context, msg detect.Message) (detect.Detection, bool, error) {
	d, ok, err := p.detector.Inspect(ctx, msg)
	p.senders.Observe(msg.User, ok, msg.ReceivedAt)
	return d, ok, err
}

// expireSenders drops idle senders every interval until ctx is done.
func (p *pipeline) expireSenders(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := p.senders.Cleanup(0); n > 0 {
				p.log.Debug("expired idle senders", zap.Int("removed", n))
			}
		}
	}
}

// close flushes what is still buffered.
func (p *pipeline) close() {
	if p.batch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := p.batch.Close(ctx)
	if err != nil {
		p.log.Error("final flush failed", zap.Error(err))
		return
	}
	stats := p.batch.Stats()
	p.log.Info("batch saver closed", zap.Int("final_flush", n), zap.Any("stats", stats))
}

// serveHTTP runs h on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
