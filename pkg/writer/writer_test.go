package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDest records writes and scripts failures.
type fakeDest struct {
	mu          sync.Mutex
	writes      [][]map[string]interface{}
	failIndices []int
	failAll     error
	schemaErr   error
	schemaCalls int
	closeCalls  int
}

func (d *fakeDest) EnsureSchema(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schemaCalls++
	return d.schemaErr
}

func (d *fakeDest) Write(ctx context.Context, rows []map[string]interface{}) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return nil, d.failAll
	}
	copied := make([]map[string]interface{}, len(rows))
	copy(copied, rows)
	d.writes = append(d.writes, copied)
	failed := d.failIndices
	d.failIndices = nil
	return failed, nil
}

func (d *fakeDest) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

func (d *fakeDest) allRows() []map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []map[string]interface{}
	for _, batch := range d.writes {
		out = append(out, batch...)
	}
	return out
}

func row(i int) map[string]interface{} {
	return map[string]interface{}{"event_id": fmt.Sprintf("ev-%d", i)}
}

func TestEnqueueEvictsOldestAtCapacity(t *testing.T) {
	dest := &fakeDest{}
	var evicted []map[string]interface{}
	// Batch size above capacity so no flush fires during the test.
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 5}, nil,
		WithEvictFunc(func(r map[string]interface{}) { evicted = append(evicted, r) }),
	)

	for i := 0; i < 8; i++ {
		w.Enqueue(row(i))
	}

	assert.Equal(t, 5, w.Len())
	require.Len(t, evicted, 3)
	assert.Equal(t, "ev-0", evicted[0]["event_id"])
	assert.Equal(t, "ev-2", evicted[2]["event_id"])

	require.NoError(t, w.Flush(context.Background()))
	rows := dest.allRows()
	require.Len(t, rows, 5)
	assert.Equal(t, "ev-3", rows[0]["event_id"])
	assert.Equal(t, "ev-7", rows[4]["event_id"])
}

func TestFlushPartialFailureRequeuesRejectedOnly(t *testing.T) {
	dest := &fakeDest{failIndices: []int{2, 5}}
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 100}, nil)

	for i := 0; i < 10; i++ {
		w.Enqueue(row(i))
	}
	require.NoError(t, w.Flush(context.Background()))

	// Only the two rejected rows remain, in their original order.
	assert.Equal(t, 2, w.Len())

	require.NoError(t, w.Flush(context.Background()))
	require.Len(t, dest.writes, 2)
	retried := dest.writes[1]
	require.Len(t, retried, 2)
	assert.Equal(t, "ev-2", retried[0]["event_id"])
	assert.Equal(t, "ev-5", retried[1]["event_id"])
}

func TestFlushTotalFailureRequeuesWholeBatch(t *testing.T) {
	dest := &fakeDest{failAll: errors.New("connection refused")}
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 100}, nil)

	for i := 0; i < 10; i++ {
		w.Enqueue(row(i))
	}
	err := w.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 10, w.Len())

	// Recovery: delivery succeeds and drains the buffer in order.
	dest.mu.Lock()
	dest.failAll = nil
	dest.mu.Unlock()
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 0, w.Len())
	rows := dest.allRows()
	require.Len(t, rows, 10)
	assert.Equal(t, "ev-0", rows[0]["event_id"])
}

func TestRequeueRespectsCapacity(t *testing.T) {
	dest := &fakeDest{failAll: errors.New("down")}
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 4}, nil)

	for i := 0; i < 4; i++ {
		w.Enqueue(row(i))
	}
	require.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 4, w.Len())

	// New arrivals plus a failed batch must still fit the cap, keeping
	// the retried rows at the front.
	w.Enqueue(row(99))
	require.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 4, w.Len())
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	dest := &fakeDest{}
	w := New(dest, Config{}, nil)
	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, dest.writes)
	assert.Equal(t, 0, dest.schemaCalls)
}

func TestSchemaBootstrapOnceAndRetriedOnFailure(t *testing.T) {
	dest := &fakeDest{schemaErr: errors.New("no permissions")}
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 100}, nil)

	// A failed bootstrap blocks delivery and re-queues the batch.
	w.Enqueue(row(0))
	require.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 1, dest.schemaCalls)
	assert.Empty(t, dest.allRows())
	assert.Equal(t, 1, w.Len())

	// Failure leaves the guard unset; next flush retries, success arms it
	// and the held-back row is delivered.
	dest.mu.Lock()
	dest.schemaErr = nil
	dest.mu.Unlock()
	w.Enqueue(row(1))
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 2, dest.schemaCalls)
	rows := dest.allRows()
	require.Len(t, rows, 2)
	assert.Equal(t, "ev-0", rows[0]["event_id"])

	w.Enqueue(row(2))
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 2, dest.schemaCalls)
}

func TestAsyncFlushAtBatchThreshold(t *testing.T) {
	dest := &fakeDest{}
	w := New(dest, Config{BatchSize: 3, BufferCapacity: 100}, nil)

	for i := 0; i < 3; i++ {
		w.Enqueue(row(i))
	}
	// Close waits for the dispatched background flush.
	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, dest.allRows(), 3)
}

func TestCloseFlushesAndIsIdempotent(t *testing.T) {
	dest := &fakeDest{}
	w := New(dest, Config{BatchSize: 100, BufferCapacity: 100}, nil)

	w.Enqueue(row(0))
	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))

	assert.Len(t, dest.allRows(), 1)
	assert.Equal(t, 1, dest.closeCalls)
}

func TestConcurrentEnqueue(t *testing.T) {
	dest := &fakeDest{}
	w := New(dest, Config{BatchSize: 10, BufferCapacity: 1000}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				w.Enqueue(row(g*1000 + i))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close(context.Background()))

	assert.Len(t, dest.allRows(), 400)
}
