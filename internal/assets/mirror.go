package assets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notion_sync/internal/content"
	"notion_sync/internal/domain"
)

// Store persists asset rows.
type Store interface {
	ListByArticle(ctx context.Context, articleID int64) ([]domain.Asset, error)
	// Save inserts the asset or replaces the row with the same block id, setting ID.
	Save(ctx context.Context, asset *domain.Asset) error
	Touch(ctx context.Context, id int64, remoteURL string, syncedAt time.Time) error
	Delete(ctx context.Context, id int64) error
	DeleteByArticle(ctx context.Context, articleID int64) ([]domain.Asset, error)
}

// Fetcher downloads remote images.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Download, error)
}

// Mirror keeps local copies of the Notion-hosted images referenced by an article.
type Mirror struct {
	store   Store
	storage Storage
	fetcher Fetcher
	clock   domain.Clock
	delay   time.Duration
	logger  *slog.Logger
}

func NewMirror(store Store, storage Storage, fetcher Fetcher, clock domain.Clock, delay time.Duration, logger *slog.Logger) *Mirror {
	return &Mirror{
		store:   store,
		storage: storage,
		fetcher: fetcher,
		clock:   clock,
		delay:   delay,
		logger:  logger.With("component", "asset_mirror"),
	}
}

// Sync makes the article's asset rows match the image blocks of its tree and returns
// block id -> url to embed. A failed download maps the block to its remote url and
// creates no row.
func (m *Mirror) Sync(ctx context.Context, articleID int64, blocks []domain.Block) (map[string]string, error) {
	images := content.ExtractImages(blocks)

	existing, err := m.store.ListByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list assets of article %d: %w", articleID, err)
	}

	hosted := make(map[string]bool, len(images))
	for _, img := range images {
		if !img.External() {
			hosted[img.BlockID] = true
		}
	}

	byBlock := make(map[string]domain.Asset, len(existing))
	for _, a := range existing {
		if hosted[a.BlockID] {
			byBlock[a.BlockID] = a
			continue
		}
		m.removeFile(ctx, a.FileName)
		if err := m.store.Delete(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("delete asset %d: %w", a.ID, err)
		}
		m.logger.Info("removed asset",
			"article_id", articleID,
			"block_id", a.BlockID,
			"file", a.FileName,
		)
	}

	mapping := make(map[string]string, len(images))
	for _, img := range images {
		if img.External() {
			mapping[img.BlockID] = img.URL
			continue
		}

		if a, ok := byBlock[img.BlockID]; ok {
			mapping[img.BlockID] = a.LocalPath
			if err := m.store.Touch(ctx, a.ID, img.URL, m.clock.Now()); err != nil {
				m.logger.Warn("failed to refresh asset",
					"block_id", img.BlockID,
					"error", err,
				)
			}
			continue
		}

		asset, err := m.download(ctx, articleID, img.BlockID, img.URL)
		if err != nil {
			m.logger.Warn("failed to mirror image, keeping remote url",
				"article_id", articleID,
				"block_id", img.BlockID,
				"error", err,
			)
			mapping[img.BlockID] = img.URL
		} else {
			mapping[img.BlockID] = asset.LocalPath
		}

		if err := m.pause(ctx); err != nil {
			return nil, err
		}
	}

	return mapping, nil
}

func (m *Mirror) download(ctx context.Context, articleID int64, blockID, url string) (*domain.Asset, error) {
	dl, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	name := FileName(blockID, dl.MimeType)
	if err := m.storage.Put(ctx, name, dl.MimeType, dl.Data); err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	now := m.clock.Now()
	asset := &domain.Asset{
		BlockID:      blockID,
		RemoteURL:    url,
		LocalPath:    m.storage.PublicPath(name),
		FileName:     name,
		MimeType:     dl.MimeType,
		Size:         int64(len(dl.Data)),
		Width:        dl.Width,
		Height:       dl.Height,
		ArticleID:    &articleID,
		LastSyncedAt: now,
		CreatedAt:    now,
	}
	if err := m.store.Save(ctx, asset); err != nil {
		m.removeFile(ctx, name)
		return nil, fmt.Errorf("save asset for block %s: %w", blockID, err)
	}

	m.logger.Debug("mirrored image",
		"article_id", articleID,
		"block_id", blockID,
		"file", name,
		"size", asset.Size,
	)
	return asset, nil
}

// MirrorCover stores a Notion-hosted cover under the page's synthetic block name and
// returns its public path. No asset row is kept for covers.
func (m *Mirror) MirrorCover(ctx context.Context, pageID, url string) (string, error) {
	dl, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	name := FileName(CoverBlockID(pageID), dl.MimeType)
	if err := m.storage.Put(ctx, name, dl.MimeType, dl.Data); err != nil {
		return "", fmt.Errorf("store cover %s: %w", name, err)
	}
	return m.storage.PublicPath(name), nil
}

// Release deletes the article's asset rows and returns them so their files can be
// discarded once the surrounding transaction commits.
func (m *Mirror) Release(ctx context.Context, articleID int64) ([]domain.Asset, error) {
	released, err := m.store.DeleteByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("release assets of article %d: %w", articleID, err)
	}
	return released, nil
}

// Discard removes the files of released assets and a mirrored cover. Failures are logged.
func (m *Mirror) Discard(ctx context.Context, released []domain.Asset, cover string) {
	for _, a := range released {
		m.removeFile(ctx, a.FileName)
	}
	if name, ok := OwnedName(m.storage, cover); ok {
		m.removeFile(ctx, name)
	}
}

func (m *Mirror) removeFile(ctx context.Context, name string) {
	if err := m.storage.Delete(ctx, name); err != nil {
		m.logger.Warn("failed to remove asset file",
			"file", name,
			"error", err,
		)
	}
}

func (m *Mirror) pause(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.delay):
		return nil
	}
}
