package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"
	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/logging"
	"github.com/ChaseHampton/lapida/internal/search"
	"go.uber.org/zap"
)

const (
	searchPath = "/memorials/search"
	pageBatch  = 100
)

type Processor struct {
	searcher       Searcher
	memproc        *MemorialProcessor
	MaxConcurrency int
	PageDelay      time.Duration
	retryAttempts  int
	retryDelay     time.Duration
	maxPages       int
	logger         *zap.Logger
}

func NewProcessor(searcher Searcher, memproc *MemorialProcessor, cfg config.ProcessorConfig, logger *zap.Logger) *Processor {
	logger = logging.OrNop(logger)
	return &Processor{
		searcher:       searcher,
		memproc:        memproc,
		MaxConcurrency: max(cfg.MaxConcurrency, 1),
		PageDelay:      cfg.PageDelay,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
		maxPages:       cfg.MaxPages,
		logger:         logger,
	}
}

// SearchURL is the path+query stored with every page of a collection.
func SearchURL(params search.SearchParams) string {
	return searchPath + "?" + params.Values().Encode()
}

// CollectionStart fetches page 1 to learn the total, opens a collection and
// queues one pending row per result page. It returns the collection id.
func (p *Processor) CollectionStart(ctx context.Context, store CollectionStore, params search.SearchParams) (int, error) {
	if err := search.ValidateFilters(params.Filters); err != nil {
		return 0, err
	}
	if params.Limit <= 0 {
		params.Limit = search.PageSize
	}
	params.Page = 1

	first, err := p.search(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("failed to get search page %d: %w", 1, err)
	}

	totalPages := search.TotalPages(first.Total, params.Limit)
	if p.maxPages > 0 && totalPages > p.maxPages {
		p.logger.Warn("collection truncated",
			zap.Int("total_pages", totalPages),
			zap.Int("max_pages", p.maxPages))
		totalPages = p.maxPages
	}

	sourceURL := SearchURL(params)
	collectionId, err := store.StartCollection(ctx, db.GetNewCollectionParams(params.Limit, sourceURL))
	if err != nil {
		return 0, fmt.Errorf("failed to start collection: %w", err)
	}
	p.logger.Info("collection started",
		zap.Int("collection_id", collectionId),
		zap.String("source", sourceURL),
		zap.Int("total", first.Total),
		zap.Int("pages", totalPages))

	batch := make([]db.PageDto, 0, pageBatch)
	inserted := 0
	for pageNumber := 1; pageNumber <= totalPages; pageNumber++ {
		select {
		case <-ctx.Done():
			return collectionId, fmt.Errorf("operation cancelled: %w", ctx.Err())
		default:
		}
		pageParams := params
		pageParams.Page = pageNumber
		batch = append(batch, db.NewPageDto(collectionId, pageNumber, SearchURL(pageParams)))
		if len(batch) >= pageBatch {
			if err := store.InsertPages(ctx, batch); err != nil {
				return collectionId, fmt.Errorf("failed to insert pages: %w", err)
			}
			inserted += len(batch)
			batch = make([]db.PageDto, 0, pageBatch)
		}
	}
	if len(batch) > 0 {
		if err := store.InsertPages(ctx, batch); err != nil {
			return collectionId, fmt.Errorf("failed to insert pages: %w", err)
		}
		inserted += len(batch)
	}
	p.logger.Info("pages queued", zap.Int("collection_id", collectionId), zap.Int("pages", inserted))
	return collectionId, nil
}

// ProcessSingleSearch fetches one queued page and waits until the snapshots
// of its new memorials were saved.
func (p *Processor) ProcessSingleSearch(ctx context.Context, page db.Page) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("operation cancelled: %w", ctx.Err())
	default:
	}

	params, err := PageParams(page)
	if err != nil {
		return err
	}
	resp, err := p.search(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to get search page %d: %w", page.PageNumber, err)
	}
	if len(resp.Memorials) == 0 {
		return nil
	}

	results := make(chan MemorialBatchResult, 1)
	batch := MemorialBatch{
		Memorials:    resp.Memorials,
		SearchURL:    page.SearchUrl,
		CollectionId: page.CollectionId,
		Page:         page,
		ResultChan:   results,
	}
	if err := p.memproc.ProcessMemorials(ctx, batch); err != nil {
		return err
	}
	select {
	case res := <-results:
		if res.Error != nil {
			p.memproc.Forget(res.Batch.Memorials)
			return fmt.Errorf("failed to record page %d: %w", page.PageNumber, res.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PageParams rebuilds the search of a stored page.
func PageParams(page db.Page) (search.SearchParams, error) {
	u, err := url.Parse(page.SearchUrl)
	if err != nil {
		return search.SearchParams{}, fmt.Errorf("invalid search url for page %d: %w", page.PageId, err)
	}
	params := search.ParamsFromValues(u.Query())
	if page.PageNumber > 0 {
		params.Page = page.PageNumber
	}
	return params, nil
}

// search retries network failures; the API client has already invalidated
// the discovered base by then, so a retry may land on a fresh one.
func (p *Processor) search(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error) {
	var lasterr error
	for attempt := 0; attempt <= p.retryAttempts; attempt++ {
		if attempt > 0 {
			p.logger.Debug("retrying search page",
				zap.Int("page", params.Page),
				zap.Int("attempt", attempt),
				zap.Error(lasterr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
		resp, err := p.searcher.SearchMemorials(ctx, params)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, domain.ErrNetwork) {
			return nil, err
		}
		lasterr = err
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", p.retryAttempts+1, lasterr)
}
