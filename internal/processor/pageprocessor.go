package processor

import (
	"context"
	"sync/atomic"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

// PageProcessor records page outcomes. Updates are applied in arrival order
// by a single goroutine.
type PageProcessor struct {
	store      PageStore
	updatechan chan PageUpdate
	done       chan struct{}
	completed  atomic.Int64
	failed     atomic.Int64
	logger     *zap.Logger
}

func NewPageProcessor(store PageStore, cfg config.ProcessorConfig, logger *zap.Logger) *PageProcessor {
	logger = logging.OrNop(logger)
	return &PageProcessor{
		store:      store,
		updatechan: make(chan PageUpdate, cfg.ChannelSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Channel accepts updates until the producer closes it.
func (pp *PageProcessor) Channel() chan<- PageUpdate {
	return pp.updatechan
}

func (pp *PageProcessor) Start(ctx context.Context) {
	go pp.processUpdates(ctx)
}

// WaitForCompletion blocks until the channel was closed and drained.
func (pp *PageProcessor) WaitForCompletion(ctx context.Context) error {
	select {
	case <-pp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pp *PageProcessor) Stats() (completed, failed int64) {
	return pp.completed.Load(), pp.failed.Load()
}

func (pp *PageProcessor) processUpdates(ctx context.Context) {
	defer close(pp.done)
	// pages finished before a shutdown still get recorded
	recordCtx := context.WithoutCancel(ctx)
	for update := range pp.updatechan {
		pp.handlePageUpdate(recordCtx, update)
	}
}

func (pp *PageProcessor) handlePageUpdate(ctx context.Context, update PageUpdate) {
	switch update.Status {
	case PageCompleted:
		pp.completed.Add(1)
		if err := pp.store.MarkPageCollected(ctx, update.PageId); err != nil {
			pp.logger.Error("failed to mark page as collected", zap.Int("page_id", update.PageId), zap.Error(err))
		}
	case PageFailed:
		pp.failed.Add(1)
		pp.logger.Warn("page failed", zap.Int("page_id", update.PageId), zap.Error(update.Error))
		if err := pp.store.MarkPageFailed(ctx, update.PageId); err != nil {
			pp.logger.Error("failed to set page as failed", zap.Int("page_id", update.PageId), zap.Error(err))
		}
	}
}
