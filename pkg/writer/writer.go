// Package writer implements the bounded, batched, retryable buffer in
// front of the analytics destination. Producers enqueue rows cheaply
// under a lock; actual delivery runs on its own goroutine so request
// handling is never blocked on network I/O.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ucptrace/ucptrace/internal/metrics"
)

// Destination is the warehouse the writer delivers to. Implementations
// must be safe for concurrent use.
//
// Write returns the indices of rows the destination rejected; a non-nil
// error means the delivery call itself failed and no row can be assumed
// written.
type Destination interface {
	// EnsureSchema idempotently creates the destination dataset/table.
	// Concurrent callers performing the same bootstrap must not error.
	EnsureSchema(ctx context.Context) error
	Write(ctx context.Context, rows []map[string]interface{}) (failed []int, err error)
	Close() error
}

const (
	DefaultBatchSize      = 50
	DefaultBufferCapacity = 10000
	defaultFlushTimeout   = 30 * time.Second
)

// Config tunes buffering behavior.
type Config struct {
	// BatchSize is the buffer depth that triggers an asynchronous flush.
	BatchSize int
	// BufferCapacity bounds the buffer; at capacity the oldest row is
	// evicted to make room for the newest.
	BufferCapacity int
	// FlushTimeout bounds a single delivery call.
	FlushTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
	return c
}

// EvictFunc observes rows dropped under backpressure. Called outside the
// buffer lock.
type EvictFunc func(row map[string]interface{})

// Writer accumulates rows and delivers them in batches. All buffer
// mutations happen under a single mutex held only for in-memory list
// operations, never across the delivery call.
type Writer struct {
	dest    Destination
	cfg     Config
	logger  *slog.Logger
	onEvict EvictFunc

	mu  sync.Mutex
	buf []map[string]interface{}

	schemaMu    sync.Mutex
	schemaReady bool

	closeMu sync.Mutex
	closed  bool
	flushes sync.WaitGroup
}

// Option customizes a Writer.
type Option func(*Writer)

// WithEvictFunc registers a hook for rows evicted under backpressure.
func WithEvictFunc(fn EvictFunc) Option {
	return func(w *Writer) { w.onEvict = fn }
}

// New builds a writer over the given destination.
func New(dest Destination, cfg Config, logger *slog.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		dest:   dest,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue appends a row to the buffer. At capacity the oldest row is
// dropped (not written) and surfaced as a warning. Reaching the batch
// threshold dispatches an asynchronous flush; the caller never waits on
// delivery.
func (w *Writer) Enqueue(row map[string]interface{}) {
	var evicted map[string]interface{}

	w.mu.Lock()
	if len(w.buf) >= w.cfg.BufferCapacity {
		evicted = w.buf[0]
		w.buf = w.buf[1:]
	}
	w.buf = append(w.buf, row)
	depth := len(w.buf)
	w.mu.Unlock()

	metrics.BufferDepth.Set(float64(depth))

	if evicted != nil {
		metrics.BufferEvictions.Inc()
		w.logger.Warn("buffer full, dropping oldest event",
			slog.Int("capacity", w.cfg.BufferCapacity),
			slog.Any("event_id", evicted["event_id"]),
		)
		if w.onEvict != nil {
			w.onEvict(evicted)
		}
	}

	if depth >= w.cfg.BatchSize {
		w.flushAsync()
	}
}

// Len reports the current buffer depth.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

func (w *Writer) flushAsync() {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.flushes.Add(1)
	w.closeMu.Unlock()

	go func() {
		defer w.flushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
		defer cancel()
		if err := w.Flush(ctx); err != nil {
			w.logger.Error("background flush failed", slog.Any("error", err))
		}
	}()
}

// Flush snapshots the buffer, clears it, and attempts a single delivery.
// A failed schema bootstrap or total delivery failure re-queues the whole
// snapshot at the front; on partial failure only the rejected rows are
// re-queued at the front. All paths respect the capacity cap.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buf) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()

	metrics.BufferDepth.Set(0)
	metrics.FlushBatches.Inc()

	// No delivery before the destination schema exists. A premature bulk
	// write would auto-create an unmanaged index under the write alias.
	if err := w.ensureSchema(ctx); err != nil {
		metrics.FlushFailures.Inc()
		metrics.RowsRequeued.Add(float64(len(batch)))
		w.requeue(batch)
		w.logger.Error("schema bootstrap failed, re-queuing batch",
			slog.Int("rows", len(batch)),
			slog.Any("error", err),
		)
		return fmt.Errorf("ensure schema: %w", err)
	}

	start := time.Now()
	failed, err := w.dest.Write(ctx, batch)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FlushFailures.Inc()
		metrics.RowsRequeued.Add(float64(len(batch)))
		w.requeue(batch)
		w.logger.Error("delivery failed, re-queuing batch",
			slog.Int("rows", len(batch)),
			slog.Any("error", err),
		)
		return fmt.Errorf("deliver %d rows: %w", len(batch), err)
	}

	if len(failed) > 0 {
		rejected := make([]map[string]interface{}, 0, len(failed))
		for _, i := range failed {
			if i >= 0 && i < len(batch) {
				rejected = append(rejected, batch[i])
			}
		}
		metrics.RowsRequeued.Add(float64(len(rejected)))
		w.requeue(rejected)
		w.logger.Warn("destination rejected rows, re-queued",
			slog.Int("rejected", len(rejected)),
			slog.Int("batch", len(batch)),
		)
		metrics.RowsDelivered.Add(float64(len(batch) - len(rejected)))
		return nil
	}

	metrics.RowsDelivered.Add(float64(len(batch)))
	w.logger.Debug("flushed events", slog.Int("rows", len(batch)))
	return nil
}

// requeue reinserts rows at the buffer front so a retried batch is
// attempted before newer events. The capacity cap is enforced by
// truncating the tail.
func (w *Writer) requeue(rows []map[string]interface{}) {
	if len(rows) == 0 {
		return
	}
	w.mu.Lock()
	w.buf = append(rows, w.buf...)
	if len(w.buf) > w.cfg.BufferCapacity {
		w.buf = w.buf[:w.cfg.BufferCapacity]
	}
	depth := len(w.buf)
	w.mu.Unlock()
	metrics.BufferDepth.Set(float64(depth))
}

// ensureSchema performs the lazy, idempotent destination bootstrap. A
// failure leaves the guard unset so the next flush retries.
func (w *Writer) ensureSchema(ctx context.Context) error {
	w.schemaMu.Lock()
	defer w.schemaMu.Unlock()
	if w.schemaReady {
		return nil
	}
	if err := w.dest.EnsureSchema(ctx); err != nil {
		return err
	}
	w.schemaReady = true
	return nil
}

// Close waits for in-flight deliveries, performs a final flush, and
// releases the destination client. Safe to call multiple times.
func (w *Writer) Close(ctx context.Context) error {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return nil
	}
	w.closed = true
	w.closeMu.Unlock()

	w.flushes.Wait()

	flushErr := w.Flush(ctx)
	closeErr := w.dest.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
