package page_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/page"
	"github.com/ChaseHampton/lapida/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) ProcessSingleSearch(ctx context.Context, page db.Page) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}

// batchSource hands out the given batches in order, then nothing.
type batchSource struct {
	mu      sync.Mutex
	batches [][]db.Page
	err     error
	calls   int
}

func (s *batchSource) GetReservedPageBatch(ctx context.Context) ([]db.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.batches) == 0 {
		return nil, s.err
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

type pageStore struct {
	mu        sync.Mutex
	collected []int
	failed    []int
}

func (s *pageStore) MarkPageCollected(ctx context.Context, pageId int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collected = append(s.collected, pageId)
	return nil
}

func (s *pageStore) MarkPageFailed(ctx context.Context, pageId int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, pageId)
	return nil
}

func pages(from, to int) []db.Page {
	out := make([]db.Page, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, db.Page{PageId: i, PageNumber: i})
	}
	return out
}

func newPager(proc page.SearchProcessor, source page.PageSource, store *pageStore, concurrency int) *page.Pager {
	cfg := config.ProcessorConfig{MaxConcurrency: concurrency, PageDelay: time.Millisecond, ChannelSize: 4}
	pproc := processor.NewPageProcessor(store, cfg, nil)
	pproc.Start(context.Background())
	return page.NewPager(proc, source, pproc, cfg, nil)
}

func TestPager_WorkerPool_ConcurrencyLimits(t *testing.T) {
	maxConcurrency := 3
	mockProc := &MockProcessor{}
	source := &batchSource{batches: [][]db.Page{pages(1, 5), pages(6, 8)}}
	store := &pageStore{}

	var concurrentCount int32
	var maxConcurrent int32
	mockProc.On("ProcessSingleSearch", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		current := atomic.AddInt32(&concurrentCount, 1)
		for {
			seen := atomic.LoadInt32(&maxConcurrent)
			if current <= seen || atomic.CompareAndSwapInt32(&maxConcurrent, seen, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrentCount, -1)
	})

	err := newPager(mockProc, source, store, maxConcurrency).WorkerPool(context.Background())

	require.NoError(t, err)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxConcurrent)), maxConcurrency, "Should not exceed max concurrency")
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, store.collected)
	assert.Empty(t, store.failed)
	mockProc.AssertNumberOfCalls(t, "ProcessSingleSearch", 8)
	assert.Equal(t, 3, source.calls, "producer stops after the first empty batch")
}

func TestPager_WorkerPool_FailedPagesAreReported(t *testing.T) {
	mockProc := &MockProcessor{}
	source := &batchSource{batches: [][]db.Page{pages(1, 3)}}
	store := &pageStore{}

	mockProc.On("ProcessSingleSearch", mock.Anything, mock.MatchedBy(func(p db.Page) bool {
		return p.PageId == 2
	})).Return(errors.New("processing error"))
	mockProc.On("ProcessSingleSearch", mock.Anything, mock.MatchedBy(func(p db.Page) bool {
		return p.PageId != 2
	})).Return(nil)

	err := newPager(mockProc, source, store, 2).WorkerPool(context.Background())

	assert.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 3}, store.collected)
	assert.Equal(t, []int{2}, store.failed)
	mockProc.AssertExpectations(t)
}

func TestPager_WorkerPool_SourceErrorStopsPool(t *testing.T) {
	mockProc := &MockProcessor{}
	boom := errors.New("deadlock")
	source := &batchSource{batches: [][]db.Page{pages(1, 2)}, err: boom}
	store := &pageStore{}
	mockProc.On("ProcessSingleSearch", mock.Anything, mock.Anything).Return(nil)

	err := newPager(mockProc, source, store, 1).WorkerPool(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestPager_WorkerPool_ContextCancellation(t *testing.T) {
	mockProc := &MockProcessor{}
	source := &batchSource{batches: [][]db.Page{pages(1, 50)}}
	store := &pageStore{}

	ctx, cancel := context.WithCancel(context.Background())
	var processed atomic.Int32
	mockProc.On("ProcessSingleSearch", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		if processed.Add(1) == 3 {
			cancel()
		}
		time.Sleep(5 * time.Millisecond)
	})

	err := newPager(mockProc, source, store, 2).WorkerPool(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, int(processed.Load()), 50, "Should process fewer pages due to cancellation")
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Less(t, len(store.collected), 50)
}
