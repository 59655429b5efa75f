package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ChaseHampton/lapida/internal/domain"
)

// MemorialDto is one archived memorial snapshot. Column order matches
// dbo.MemorialSnapshotType.
type MemorialDto struct {
	CollectionId  int          `db:"CollectionId"`
	PageNumber    int          `db:"PageNumber"`
	MemorialId    string       `db:"MemorialId"`
	PublicPath    string       `db:"PublicPath"`
	FullName      string       `db:"FullName"`
	ActiveCandles int          `db:"ActiveCandles"`
	ActiveFlowers int          `db:"ActiveFlowers"`
	Json          string       `db:"Json"`
	Timestamp     sql.NullTime `db:"Timestamp"`
}

type DuplicateEntry struct {
	MemorialId   string `db:"MemorialId"`
	CollectionId int    `db:"CollectionId"`
	PageNumber   int    `db:"PageNumber"`
	Json         string `db:"Json"`
}

type MemorialIdRow struct {
	MemorialId string `db:"MemorialId"`
}

type PageDto struct {
	CollectionId  int          `db:"CollectionId"`
	PageNumber    int          `db:"PageNumber"`
	SearchUrl     string       `db:"SearchUrl"`
	Progress      string       `db:"Progress"`
	IsComplete    bool         `db:"IsComplete"`
	RetryCount    int          `db:"RetryCount"`
	LastAttemptAt sql.NullTime `db:"LastAttemptAt"`
}

type CollectionParamsDto struct {
	BatchSize int          `db:"BatchSize"`
	SourceUrl string       `db:"SourceUrl"`
	StartedAt sql.NullTime `db:"StartedAt"`
}

type CollectionStartDto struct {
	CollectionId int `db:"NewRecordID"`
}

type Page struct {
	PageId        int        `db:"PageId"`
	CollectionId  int        `db:"CollectionId"`
	PageNumber    int        `db:"PageNumber"`
	SearchUrl     string     `db:"SearchUrl"`
	Progress      string     `db:"Progress"`
	IsComplete    bool       `db:"IsComplete"`
	RetryCount    int        `db:"RetryCount"`
	LastAttemptAt *time.Time `db:"LastAttemptAt"`
	CreatedAt     time.Time  `db:"CreatedAt"`
	UpdatedAt     time.Time  `db:"UpdatedAt"`
}

// NewMemorialDto snapshots m as of now; the candle and flower counts are the
// ones active at that instant.
func NewMemorialDto(m domain.Memorial, collectionId int, pagenumber int, now time.Time) (*MemorialDto, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	candles, flowers := domain.CountActive(m.VirtualItems, now)
	return &MemorialDto{
		CollectionId:  collectionId,
		PageNumber:    pagenumber,
		MemorialId:    m.ID,
		PublicPath:    m.PublicPath(),
		FullName:      m.DisplayName(),
		ActiveCandles: candles,
		ActiveFlowers: flowers,
		Json:          string(body),
		Timestamp:     sql.NullTime{Time: now, Valid: true},
	}, nil
}

func ConvertPageMemorials(memorials []domain.Memorial, collectionId int, pagenumber int, now time.Time) ([]MemorialDto, error) {
	dtos := make([]MemorialDto, 0, len(memorials))
	for _, memorial := range memorials {
		dto, err := NewMemorialDto(memorial, collectionId, pagenumber, now)
		if err != nil {
			return nil, err
		}
		dtos = append(dtos, *dto)
	}
	return dtos, nil
}

func NewDuplicateEntry(m domain.Memorial, collectionId int, pagenumber int) (*DuplicateEntry, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &DuplicateEntry{
		MemorialId:   m.ID,
		CollectionId: collectionId,
		PageNumber:   pagenumber,
		Json:         string(body),
	}, nil
}

func GetNewCollectionParams(batchSize int, sourceUrl string) CollectionParamsDto {
	return CollectionParamsDto{
		BatchSize: batchSize,
		SourceUrl: sourceUrl,
		StartedAt: sql.NullTime{Time: time.Now(), Valid: true},
	}
}

// NewPageDto describes one pending page of a collection.
func NewPageDto(collectionId, pageNumber int, searchUrl string) PageDto {
	return PageDto{
		CollectionId:  collectionId,
		PageNumber:    pageNumber,
		SearchUrl:     searchUrl,
		Progress:      "pending",
		LastAttemptAt: sql.NullTime{},
	}
}
