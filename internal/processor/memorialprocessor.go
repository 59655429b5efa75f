// MemorialProcessor splits fetched memorials into new snapshots and duplicates
package processor

import (
	"context"

	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/duplicates"
	"github.com/ChaseHampton/lapida/internal/logging"
	"go.uber.org/zap"
)

type MemorialProcessor struct {
	memorialCache *db.MemorialCache
	writer        *MemorialWriter
	dp            *duplicates.DuplicateProcessor
	normalize     func(domain.Memorial) domain.Memorial
	logger        *zap.Logger
}

// NewMemorialProcessor seeds the seen cache from loader. A failed load is
// logged and the run continues with an empty cache. normalize may be nil.
func NewMemorialProcessor(ctx context.Context, loader SeenLoader, writer *MemorialWriter, dproc *duplicates.DuplicateProcessor, normalize func(domain.Memorial) domain.Memorial, logger *zap.Logger) *MemorialProcessor {
	logger = logging.OrNop(logger)
	cache := db.NewMemorialCache()
	if loader != nil {
		ids, err := loader.GetAllSeenMemorials(ctx)
		if err != nil {
			logger.Warn("failed to load seen memorials cache", zap.Error(err))
		} else {
			cache.MarkSeen(ids)
			logger.Info("loaded seen memorials into cache", zap.Int("count", len(ids)))
		}
	}
	return &MemorialProcessor{
		memorialCache: cache,
		writer:        writer,
		dp:            dproc,
		normalize:     normalize,
		logger:        logger,
	}
}

func (mp *MemorialProcessor) ProcessMemorials(ctx context.Context, membatch MemorialBatch) error {
	memorials := membatch.Memorials
	if mp.normalize != nil {
		memorials = make([]domain.Memorial, len(membatch.Memorials))
		for i, m := range membatch.Memorials {
			memorials[i] = mp.normalize(m)
		}
	}

	fresh, seen := mp.memorialCache.Claim(memorials)
	mp.logger.Debug("memorial batch split",
		zap.Int("page", membatch.Page.PageNumber),
		zap.Int("new", len(fresh)),
		zap.Int("seen", len(seen)))

	dupechan := mp.dp.Channel()
	for _, record := range seen {
		entry, err := db.NewDuplicateEntry(record, membatch.CollectionId, membatch.Page.PageNumber)
		if err != nil {
			mp.logger.Warn("failed to marshal duplicate memorial", zap.String("memorial_id", record.ID), zap.Error(err))
			continue
		}
		select {
		case dupechan <- *entry:
		case <-ctx.Done():
			mp.Forget(fresh)
			return ctx.Err()
		}
	}

	membatch.Memorials = fresh
	select {
	case mp.writer.Channel() <- membatch:
		return nil
	case <-ctx.Done():
		mp.Forget(fresh)
		return ctx.Err()
	}
}

// Forget releases memorials whose snapshot was not recorded, so a retried
// page archives them again.
func (mp *MemorialProcessor) Forget(memorials []domain.Memorial) {
	if len(memorials) == 0 {
		return
	}
	ids := make([]string, len(memorials))
	for i, m := range memorials {
		ids[i] = m.ID
	}
	mp.memorialCache.Forget(ids)
}

func (mp *MemorialProcessor) SeenCount() int {
	return mp.memorialCache.Size()
}
