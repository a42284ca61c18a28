package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"sensorwatch/internal/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockSource serves records pushed onto queue
type mockSource struct {
	queue     chan bus.Record
	fetchErrs atomic.Int32
	commitErr error

	mu        sync.Mutex
	committed [][]bus.Record
}

func newMockSource() *mockSource {
	return &mockSource{queue: make(chan bus.Record, 100)}
}

func (m *mockSource) Fetch(ctx context.Context) (bus.Record, error) {
	if m.fetchErrs.Load() > 0 {
		m.fetchErrs.Add(-1)
		return bus.Record{}, errors.New("broker unavailable")
	}
	select {
	case rec := <-m.queue:
		return rec, nil
	case <-ctx.Done():
		return bus.Record{}, ctx.Err()
	}
}

func (m *mockSource) Commit(ctx context.Context, records []bus.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, append([]bus.Record(nil), records...))
	return m.commitErr
}

func (m *mockSource) commits() [][]bus.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]bus.Record(nil), m.committed...)
}

func (m *mockSource) push(n int) {
	for i := 0; i < n; i++ {
		m.queue <- bus.Record{ID: string(rune('a' + i)), Offset: int64(i)}
	}
}

// countingHandler fails records whose ID is in fail
type countingHandler struct {
	mu      sync.Mutex
	batches []int
	fail    map[string]bool
}

func (h *countingHandler) HandleBatch(ctx context.Context, records []bus.Record) bus.BatchResult {
	h.mu.Lock()
	h.batches = append(h.batches, len(records))
	h.mu.Unlock()

	var res bus.BatchResult
	for i, rec := range records {
		var err error
		if h.fail[rec.ID] {
			err = errors.New("boom")
		}
		res.Record(i, rec.ID, err)
	}
	return res
}

func (h *countingHandler) sizes() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.batches...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunner_BatchesBySize(t *testing.T) {
	src := newMockSource()
	h := &countingHandler{}

	r := New(Config{
		Stage:        "test",
		Source:       src,
		Handler:      h,
		BatchSize:    5,
		BatchTimeout: time.Minute, // Long timeout to force size-based batching
	})
	r.Start()
	defer r.Stop()

	src.push(10)

	waitFor(t, func() bool { return len(src.commits()) == 2 })

	for i, size := range h.sizes() {
		if size != 5 {
			t.Errorf("batch %d: expected 5 records, got %d", i, size)
		}
	}
	if stats := r.Stats(); stats.Processed != 10 || stats.Batches != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRunner_FlushesOnTimeout(t *testing.T) {
	src := newMockSource()
	h := &countingHandler{}

	r := New(Config{
		Stage:        "test",
		Source:       src,
		Handler:      h,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	src.push(3)

	waitFor(t, func() bool { return len(src.commits()) == 1 })

	if got := len(src.commits()[0]); got != 3 {
		t.Errorf("expected partial batch of 3, got %d", got)
	}
}

func TestRunner_CommitsBatchWithFailures(t *testing.T) {
	src := newMockSource()
	h := &countingHandler{fail: map[string]bool{"b": true}}

	r := New(Config{Stage: "test", Source: src, Handler: h, BatchSize: 3, BatchTimeout: time.Minute})
	r.Start()
	defer r.Stop()

	src.push(3)

	waitFor(t, func() bool { return len(src.commits()) == 1 })

	if got := len(src.commits()[0]); got != 3 {
		t.Errorf("expected whole batch committed, got %d records", got)
	}
	stats := r.Stats()
	if stats.Processed != 2 || stats.Failed != 1 {
		t.Errorf("expected 2 processed and 1 failed, got %+v", stats)
	}
}

func TestRunner_RecoversFromPanic(t *testing.T) {
	src := newMockSource()
	handler := bus.BatchHandlerFunc(func(ctx context.Context, records []bus.Record) bus.BatchResult {
		panic("handler exploded")
	})

	r := New(Config{Stage: "test", Source: src, Handler: handler, BatchSize: 2, BatchTimeout: time.Minute})
	r.Start()
	defer r.Stop()

	src.push(4)

	waitFor(t, func() bool { return len(src.commits()) == 2 })

	if stats := r.Stats(); stats.Failed != 4 || stats.Processed != 0 {
		t.Errorf("expected every record failed, got %+v", stats)
	}
}

func TestRunner_FlushesPendingOnStop(t *testing.T) {
	src := newMockSource()
	h := &countingHandler{}

	r := New(Config{Stage: "test", Source: src, Handler: h, BatchSize: 100, BatchTimeout: time.Minute})
	r.Start()

	src.push(4)
	waitFor(t, func() bool { return len(src.queue) == 0 })
	// records are pulled from queue before they reach the batch
	time.Sleep(20 * time.Millisecond)

	r.Stop()

	total := 0
	for _, c := range src.commits() {
		total += len(c)
	}
	if total != 4 {
		t.Errorf("expected 4 records flushed on stop, got %d", total)
	}
}

func TestRunner_CommitFailureCounted(t *testing.T) {
	src := newMockSource()
	src.commitErr = errors.New("rebalance in progress")

	r := New(Config{Stage: "test", Source: src, Handler: &countingHandler{}, BatchSize: 1, BatchTimeout: time.Minute})
	r.Start()
	defer r.Stop()

	src.push(1)

	waitFor(t, func() bool { return r.Stats().CommitErrors == 1 })
}

func TestRunner_RetriesAfterFetchError(t *testing.T) {
	src := newMockSource()
	src.fetchErrs.Store(2)

	r := New(Config{
		Stage:        "test",
		Source:       src,
		Handler:      &countingHandler{},
		BatchSize:    1,
		BatchTimeout: time.Minute,
		FetchBackoff: 5 * time.Millisecond,
	})
	r.Start()
	defer r.Stop()

	src.push(1)

	waitFor(t, func() bool { return r.Stats().Processed == 1 })
}
