package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"notion_sync/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	Configured() bool
	RetrievePage(ctx context.Context, pageID string) (*domain.SourcePage, error)
	FetchBlockTree(ctx context.Context, blockID string) ([]domain.Block, error)
	QueryPublishedPageIDs(ctx context.Context) ([]string, error)
}

type ArticleStore interface {
	GetBySourcePageID(ctx context.Context, pageID string) (*domain.Article, error)
	Upsert(ctx context.Context, article *domain.Article) (int64, bool, error)
	CompleteSync(ctx context.Context, id int64, content string, lastEdited time.Time) (bool, error)
	Delete(ctx context.Context, id int64) error
	ListSourcePageIDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (int, *time.Time, error)
}

type AssetMirror interface {
	Sync(ctx context.Context, articleID int64, blocks []domain.Block) (map[string]string, error)
	MirrorCover(ctx context.Context, pageID, url string) (string, error)
	Release(ctx context.Context, articleID int64) ([]domain.Asset, error)
	Discard(ctx context.Context, released []domain.Asset, cover string)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.ArticleEvent) error
	Close() error
}
