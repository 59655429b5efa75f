package processor

import (
	"context"

	"github.com/ChaseHampton/lapida/internal/db"
	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/ChaseHampton/lapida/internal/search"
)

type MemorialBatch struct {
	Memorials    []domain.Memorial
	SearchURL    string
	CollectionId int
	Page         db.Page
	// ResultChan needs room for one result; the writer never waits on it.
	ResultChan chan<- MemorialBatchResult
}

type MemorialBatchResult struct {
	Error error
	Batch *MemorialBatch
}

type PageUpdate struct {
	PageId int
	Status PageStatus
	Error  error
}

type PageStatus int

const (
	PageCompleted PageStatus = iota
	PageFailed
)

func GetPageUpdate(page *db.Page, status PageStatus, err error) PageUpdate {
	return PageUpdate{
		PageId: page.PageId,
		Status: status,
		Error:  err,
	}
}

// Searcher runs a structured memorial search; *api.Client implements it.
type Searcher interface {
	SearchMemorials(ctx context.Context, params search.SearchParams) (*search.SearchResponse, error)
}

type CollectionStore interface {
	StartCollection(ctx context.Context, input db.CollectionParamsDto) (int, error)
	InsertPages(ctx context.Context, pages []db.PageDto) error
}

type SnapshotStore interface {
	SaveMemorialSnapshots(ctx context.Context, rows []db.MemorialDto) error
}

type PageStore interface {
	MarkPageCollected(ctx context.Context, pageId int) error
	MarkPageFailed(ctx context.Context, pageId int) error
}

type SeenLoader interface {
	GetAllSeenMemorials(ctx context.Context) ([]string, error)
}
