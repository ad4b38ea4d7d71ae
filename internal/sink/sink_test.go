package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/cim"
	"github.com/darkermemo/sim6-sub001/internal/eventstore"
	"github.com/darkermemo/sim6-sub001/internal/normalize"
)

type fakeStore struct {
	mu        sync.Mutex
	batches   [][]cim.Event
	failUntil int
	calls     int
}

func (f *fakeStore) InsertBatch(_ context.Context, events []cim.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("backend unavailable")
	}
	cp := make([]cim.Event, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStore) Query(context.Context, string, []interface{}, int) ([]eventstore.Row, error) {
	return nil, nil
}

func (f *fakeStore) QueryAggregate(context.Context, string, []interface{}) ([]eventstore.AggregateRow, error) {
	return nil, nil
}

func (f *fakeStore) snapshot() [][]cim.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]cim.Event, len(f.batches))
	copy(out, f.batches)
	return out
}

type fakeProducer struct {
	mu       sync.Mutex
	appended []cim.Event
}

func (f *fakeProducer) Append(_ context.Context, _ string, event cim.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, event)
	return nil
}

func testLimits() normalize.Limits {
	return normalize.Limits{MaxMessageLength: 1000, MaxFieldsCount: 50}
}

func newTestSink(store eventstore.EventStore, producer StreamProducer, dlq DeadLetterQueue, cfg Config) *Sink {
	cfg.Limits = testLimits()
	cfg.DefaultTenantID = "tenant-a"
	return New(cfg, store, producer, dlq, nil, nil, nil)
}

func rawJSON(msg string) []byte {
	return []byte(`{"message":"` + msg + `","tenant_id":"tenant-a"}`)
}

func TestSink_FlushesOnBatchSize(t *testing.T) {
	store := &fakeStore{}
	producer := &fakeProducer{}
	s := newTestSink(store, producer, nil, Config{
		MaxBatchSize: 3,
		MaxLatency:   time.Hour,
		WorkerCount:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(context.Background(), rawJSON("hello"), ""))
	}

	require.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	require.Len(t, store.snapshot()[0], 3)

	cancel()
	require.NoError(t, s.Stop(context.Background()))
}

func TestSink_FlushesOnLatencyTimeout(t *testing.T) {
	store := &fakeStore{}
	s := newTestSink(store, nil, nil, Config{
		MaxBatchSize: 100,
		MaxLatency:   30 * time.Millisecond,
		WorkerCount:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Submit(context.Background(), rawJSON("hi"), ""))

	require.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, s.Stop(context.Background()))
}

func TestSink_RetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{failUntil: 2}
	s := newTestSink(store, nil, nil, Config{
		MaxBatchSize: 1,
		MaxLatency:   time.Hour,
		WorkerCount:  1,
		MaxRetries:   5,
		BaseBackoff:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Submit(context.Background(), rawJSON("retry-me"), ""))

	require.Eventually(t, func() bool { return len(store.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, store.calls, 3)

	cancel()
	require.NoError(t, s.Stop(context.Background()))
}

func TestSink_DeadLettersAfterRetriesExhausted(t *testing.T) {
	store := &fakeStore{failUntil: 100}
	dlq := NewRingDLQ(10)
	s := newTestSink(store, nil, dlq, Config{
		MaxBatchSize: 1,
		MaxLatency:   time.Hour,
		WorkerCount:  1,
		MaxRetries:   2,
		BaseBackoff:  time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Submit(context.Background(), rawJSON("doomed"), ""))

	require.Eventually(t, func() bool { return dlq.Len() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "tenant-a", dlq.Entries()[0].TenantID)

	cancel()
	require.NoError(t, s.Stop(context.Background()))
}

func TestSink_SubmitRejectsInvalidRecord(t *testing.T) {
	store := &fakeStore{}
	s := newTestSink(store, nil, nil, Config{MaxBatchSize: 10, MaxLatency: time.Hour, WorkerCount: 1})
	err := s.Submit(context.Background(), []byte(`{"tenant_id":"tenant-a"}`), "")
	require.Error(t, err)
}
