// Package dlq persists events dropped under buffer backpressure to NATS
// JetStream so they survive process restarts and can be replayed.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "UCPTRACE_DLQ"
	evictSubject  = "ucptrace.dlq.evicted"
	streamSubject = "ucptrace.dlq.>"
)

// DroppedEvent wraps an evicted row with drop metadata.
type DroppedEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Reason    string                 `json:"reason"`
	Row       map[string]interface{} `json:"row"`
}

// JetStreamQueue writes evicted event rows to a JetStream stream. Safe
// for use from concurrent producers.
type JetStreamQueue struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	logger  *slog.Logger
	written uint64
}

// NewJetStreamQueue connects to NATS and ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, natsURL string, logger *slog.Logger) (*JetStreamQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(natsURL, nats.Name("ucptrace-dlq"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{streamSubject},
		MaxAge:    24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024,
		MaxMsgs:   1000000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.Info("dlq stream ready", slog.String("stream", streamName))

	return &JetStreamQueue{
		conn:   conn,
		js:     js,
		stream: stream,
		logger: logger,
	}, nil
}

// WriteEvicted records one evicted row. Errors are logged, never
// propagated; the DLQ is itself best-effort.
func (q *JetStreamQueue) WriteEvicted(ctx context.Context, row map[string]interface{}) {
	if q == nil {
		return
	}

	dropped := DroppedEvent{
		Timestamp: time.Now().UTC(),
		Reason:    "buffer_capacity",
		Row:       row,
	}

	data, err := json.Marshal(dropped)
	if err != nil {
		q.logger.Error("marshal dlq entry failed", slog.Any("error", err))
		return
	}

	if _, err := q.js.Publish(ctx, evictSubject, data); err != nil {
		q.logger.Error("publish dlq entry failed", slog.Any("error", err))
		return
	}

	atomic.AddUint64(&q.written, 1)
}

// List fetches up to limit dropped events for inspection.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]DroppedEvent, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: streamSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var events []DroppedEvent
	for msg := range msgs.Messages() {
		var dropped DroppedEvent
		if err := json.Unmarshal(msg.Data(), &dropped); err != nil {
			q.logger.Warn("skipping unparsable dlq message", slog.Any("error", err))
			continue
		}
		events = append(events, dropped)
	}
	if msgs.Error() != nil {
		q.logger.Warn("dlq fetch completed with error", slog.Any("error", msgs.Error()))
	}

	return events, nil
}

// Stats reports stream counters.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{"enabled": false}
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		return map[string]interface{}{
			"enabled":       true,
			"written_local": atomic.LoadUint64(&q.written),
			"error":         err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":        true,
		"written_local":  atomic.LoadUint64(&q.written),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
	}
}

// Close drains the NATS connection.
func (q *JetStreamQueue) Close() {
	if q == nil || q.conn == nil {
		return
	}
	q.conn.Close()
}
