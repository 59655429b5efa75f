package duplicates

import (
	"context"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

type Store interface {
	InsertDuplicates(ctx context.Context, rows []db.DuplicateEntry) error
}

// DuplicateProcessor batches memorials met again during a collection. A
// memorial repeated inside one batch is written once.
type DuplicateProcessor struct {
	cfg     config.ProcessorConfig
	store   Store
	entries chan db.DuplicateEntry
	done    chan struct{}
	logger  *zap.Logger
}

func NewDuplicateProcessor(cfg config.ProcessorConfig, store Store, logger *zap.Logger) *DuplicateProcessor {
	logger = logging.OrNop(logger)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = time.Second
	}
	return &DuplicateProcessor{
		cfg:     cfg,
		store:   store,
		entries: make(chan db.DuplicateEntry, cfg.ChannelSize),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (dp *DuplicateProcessor) Channel() chan<- db.DuplicateEntry {
	return dp.entries
}

func (dp *DuplicateProcessor) Start(ctx context.Context) {
	go dp.processDuplicates(ctx)
}

func (dp *DuplicateProcessor) Stop(ctx context.Context) error {
	close(dp.entries)
	select {
	case <-dp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dp *DuplicateProcessor) processDuplicates(ctx context.Context) {
	defer close(dp.done)
	flushCtx := context.WithoutCancel(ctx)

	batch := make([]db.DuplicateEntry, 0, dp.cfg.BatchSize)
	batchContains := make(map[string]bool)
	flushtimer := time.NewTimer(dp.cfg.FlushTimeout)
	defer flushtimer.Stop()

	for {
		select {
		case entry, ok := <-dp.entries:
			if !ok {
				dp.flushBatch(flushCtx, batch)
				return
			}
			if batchContains[entry.MemorialId] {
				continue
			}
			batch = append(batch, entry)
			batchContains[entry.MemorialId] = true

			if len(batch) >= dp.cfg.BatchSize {
				dp.flushAndReset(ctx, &batch, &batchContains)
				flushtimer.Reset(dp.cfg.FlushTimeout)
			}
		case <-flushtimer.C:
			dp.flushAndReset(ctx, &batch, &batchContains)
			flushtimer.Reset(dp.cfg.FlushTimeout)
		case <-ctx.Done():
			dp.flushBatch(flushCtx, batch)
			return
		}
	}
}

func (dp *DuplicateProcessor) flushAndReset(ctx context.Context, batch *[]db.DuplicateEntry, batchContains *map[string]bool) {
	if len(*batch) == 0 {
		return
	}
	dp.flushBatch(ctx, *batch)
	*batch = make([]db.DuplicateEntry, 0, dp.cfg.BatchSize)
	*batchContains = make(map[string]bool, dp.cfg.BatchSize)
}

func (dp *DuplicateProcessor) flushBatch(ctx context.Context, batch []db.DuplicateEntry) {
	if len(batch) == 0 {
		return
	}
	dp.logger.Info("flushing duplicate batch", zap.Int("size", len(batch)))
	if err := dp.store.InsertDuplicates(ctx, batch); err != nil {
		dp.logger.Error("failed to insert duplicate batch", zap.Int("size", len(batch)), zap.Error(err))
	}
}
