package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ChaseHampton/lapida/internal/config"

	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"
)

const pageReserveBatch = 100

type DbWriter struct {
	db                *sqlx.DB
	MemorialTvpName   string
	DuplicateTvpName  string
	MemorialIdTvpName string
}

func NewDb(cfg *config.DbConfig, tvp config.TvpNames) (*DbWriter, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s;encrypt=true;trustservercertificate=true",
		cfg.Host, cfg.Port, cfg.DBName, cfg.User, cfg.Password)

	db, err := sqlx.Connect("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DbWriter{
		db:                db,
		MemorialTvpName:   tvp.MemorialTvpName,
		DuplicateTvpName:  tvp.DuplicateTvpName,
		MemorialIdTvpName: tvp.MemorialIdTvpName,
	}, nil
}

func (d *DbWriter) Close() error {
	return d.db.Close()
}

func (d *DbWriter) StartCollection(ctx context.Context, input CollectionParamsDto) (int, error) {
	var result CollectionStartDto
	query := `EXEC dbo.sp_StartNewCollection @BatchSize = @p1, @SourceUrl = @p2, @StartedAt = @p3;`

	err := d.db.GetContext(ctx, &result, query, input.BatchSize, input.SourceUrl, input.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to start collection: %w", err)
	}
	return result.CollectionId, nil
}

func (d *DbWriter) InsertPages(ctx context.Context, pages []PageDto) error {
	if len(pages) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "EXEC dbo.BulkInsertPages @Pages = @Pages",
			sql.Named("Pages", mssql.TVP{TypeName: "dbo.PageList", Value: pages}))
		if err != nil {
			return fmt.Errorf("failed to execute page bulk insert: %w", err)
		}
		return nil
	})
}

// GetReservedPageBatch hands out pending pages of open collections and marks
// them in progress, so concurrent archive runs never fetch the same page.
func (d *DbWriter) GetReservedPageBatch(ctx context.Context) ([]Page, error) {
	var pages []Page
	err := d.db.SelectContext(ctx, &pages,
		"EXEC dbo.GetAndReservePageBatch @BatchSize = @BatchSize",
		sql.Named("BatchSize", pageReserveBatch))
	if err != nil {
		return nil, fmt.Errorf("failed to get page batch: %w", err)
	}
	return pages, nil
}

func (d *DbWriter) MarkPageCollected(ctx context.Context, pageId int) error {
	_, err := d.db.ExecContext(ctx, "EXEC dbo.MarkPageCollected @PageId = @PageId", sql.Named("PageId", pageId))
	if err != nil {
		return fmt.Errorf("failed to mark page collected: %w", err)
	}
	return nil
}

func (d *DbWriter) MarkPageFailed(ctx context.Context, pageId int) error {
	_, err := d.db.ExecContext(ctx, "EXEC dbo.MarkPageFailed @PageId = @PageId", sql.Named("PageId", pageId))
	if err != nil {
		return fmt.Errorf("failed to set page failed: %w", err)
	}
	return nil
}

// SaveMemorialSnapshots records the memorial ids as seen and inserts their
// snapshots in one transaction. Either both land or neither does.
func (d *DbWriter) SaveMemorialSnapshots(ctx context.Context, rows []MemorialDto) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]MemorialIdRow, len(rows))
	for i, row := range rows {
		ids[i] = MemorialIdRow{MemorialId: row.MemorialId}
	}
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			"EXEC dbo.sp_RecordSeenMemorialIds @MemorialIds = @MemorialIds",
			sql.Named("MemorialIds", mssql.TVP{TypeName: d.MemorialIdTvpName, Value: ids}))
		if err != nil {
			return fmt.Errorf("failed to record seen memorials: %w", err)
		}
		_, err = tx.ExecContext(ctx, "EXEC dbo.BulkInsertMemorialSnapshots @Memorials = @Memorials",
			sql.Named("Memorials", mssql.TVP{TypeName: d.MemorialTvpName, Value: rows}))
		if err != nil {
			return fmt.Errorf("failed to execute snapshot bulk insert: %w", err)
		}
		return nil
	})
}

func (d *DbWriter) InsertDuplicates(ctx context.Context, rows []DuplicateEntry) error {
	if len(rows) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "EXEC dbo.BulkInsertDuplicates @Duplicates = @Duplicates",
			sql.Named("Duplicates", mssql.TVP{TypeName: d.DuplicateTvpName, Value: rows}))
		if err != nil {
			return fmt.Errorf("failed to execute duplicate bulk insert: %w", err)
		}
		return nil
	})
}

func (d *DbWriter) GetAllSeenMemorials(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.db.SelectContext(ctx, &ids, "SELECT MemorialId FROM dbo.SeenMemorials"); err != nil {
		return nil, fmt.Errorf("failed to load seen memorials: %w", err)
	}
	return ids, nil
}

func (d *DbWriter) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
