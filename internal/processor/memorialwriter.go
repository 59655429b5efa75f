package processor

import (
	"context"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

type MemorialWriter struct {
	store     SnapshotStore
	cfg       config.ProcessorConfig
	batchChan chan MemorialBatch
	done      chan struct{}
	now       func() time.Time
	logger    *zap.Logger
}

func NewMemorialWriter(store SnapshotStore, cfg config.ProcessorConfig, logger *zap.Logger) *MemorialWriter {
	logger = logging.OrNop(logger)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = time.Second
	}
	return &MemorialWriter{
		store:     store,
		cfg:       cfg,
		batchChan: make(chan MemorialBatch, cfg.ChannelSize),
		done:      make(chan struct{}),
		now:       time.Now,
		logger:    logger,
	}
}

func (mw *MemorialWriter) Channel() chan<- MemorialBatch {
	return mw.batchChan
}

func (mw *MemorialWriter) Start(ctx context.Context) {
	go mw.processBatches(ctx)
}

// Stop closes the input, drains what is queued and flushes.
func (mw *MemorialWriter) Stop(ctx context.Context) error {
	close(mw.batchChan)
	select {
	case <-mw.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processBatches buffers snapshots across pages. A page hears back only once
// the flush holding its rows has committed or failed.
func (mw *MemorialWriter) processBatches(ctx context.Context) {
	defer close(mw.done)
	// the last flush must still reach the database after ctx is cancelled
	flushCtx := context.WithoutCancel(ctx)

	pending := &pendingSnapshots{rows: make([]db.MemorialDto, 0, mw.cfg.BatchSize)}
	flushtimer := time.NewTimer(mw.cfg.FlushTimeout)
	defer flushtimer.Stop()

	for {
		select {
		case batch, ok := <-mw.batchChan:
			if !ok {
				mw.flushBatch(flushCtx, pending)
				return
			}
			if len(batch.Memorials) == 0 {
				reply(batch, nil)
				continue
			}
			dtos, err := db.ConvertPageMemorials(batch.Memorials, batch.CollectionId, batch.Page.PageNumber, mw.now())
			if err != nil {
				mw.logger.Error("failed to convert memorials to snapshots",
					zap.Int("page", batch.Page.PageNumber),
					zap.Error(err))
				reply(batch, err)
				continue
			}
			pending.rows = append(pending.rows, dtos...)
			pending.batches = append(pending.batches, batch)
			if len(pending.rows) >= mw.cfg.BatchSize {
				mw.flushBatch(ctx, pending)
				flushtimer.Reset(mw.cfg.FlushTimeout)
			}
		case <-flushtimer.C:
			mw.flushBatch(ctx, pending)
			flushtimer.Reset(mw.cfg.FlushTimeout)
		case <-ctx.Done():
			mw.flushBatch(flushCtx, pending)
			return
		}
	}
}

type pendingSnapshots struct {
	rows    []db.MemorialDto
	batches []MemorialBatch
}

func reply(batch MemorialBatch, err error) {
	if batch.ResultChan != nil {
		batch.ResultChan <- MemorialBatchResult{Error: err, Batch: &batch}
	}
}

func (mw *MemorialWriter) flushBatch(ctx context.Context, pending *pendingSnapshots) {
	if len(pending.rows) == 0 {
		return
	}
	mw.logger.Info("flushing memorial snapshots",
		zap.Int("size", len(pending.rows)),
		zap.Int("pages", len(pending.batches)))
	err := mw.store.SaveMemorialSnapshots(ctx, pending.rows)
	if err != nil {
		mw.logger.Error("failed to flush memorial snapshots", zap.Int("size", len(pending.rows)), zap.Error(err))
	}
	for _, batch := range pending.batches {
		reply(batch, err)
	}
	pending.rows = make([]db.MemorialDto, 0, mw.cfg.BatchSize)
	pending.batches = nil
}
