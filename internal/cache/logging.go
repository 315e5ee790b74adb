package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"calculator-service/internal/metrics"
	"calculator-service/pkg/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs and records metrics per op.
func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	start := time.Now()
	entry, ok, err := s.inner.Get(ctx, fingerprint)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
		metrics.CacheErrorsTotal.WithLabelValues("get").Inc()
	case ok:
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	default:
		metrics.CacheMissesTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("fingerprint", fingerprint),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}
	if ok && entry.ErrKind != "" {
		fields = append(fields, zap.String("err_kind", entry.ErrKind))
	}

	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return entry, ok, err
}

func (s *LoggingStore) Put(ctx context.Context, fingerprint string, entry Entry) error {
	start := time.Now()
	err := s.inner.Put(ctx, fingerprint, entry)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("fingerprint", fingerprint),
		zap.Duration("ttl", entry.TTL),
		zap.Float64("latency_ms", latencyMs),
	}
	if entry.ErrKind != "" {
		fields = append(fields, zap.String("err_kind", entry.ErrKind))
	}

	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("put").Inc()
		logger.Error("cache_put", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_put", fields...)
	}

	return err
}

func (s *LoggingStore) Delete(ctx context.Context, fingerprint string) error {
	err := s.inner.Delete(ctx, fingerprint)
	if err != nil {
		metrics.CacheErrorsTotal.WithLabelValues("delete").Inc()
		logging.L(ctx).Error("cache_delete",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
	}
	return err
}

func (s *LoggingStore) Close() error {
	return s.inner.Close()
}
