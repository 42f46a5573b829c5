package server

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"notion_sync/internal/domain"
)

type Syncer interface {
	SyncAll(ctx context.Context) (*domain.SyncReport, error)
	SyncPage(ctx context.Context, pageID string) (domain.SyncResult, error)
	Status(ctx context.Context) (*domain.SourceStats, error)
}
