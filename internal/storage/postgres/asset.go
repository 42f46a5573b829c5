package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"notion_sync/internal/domain"
)

type AssetStore struct {
	db *sqlx.DB
}

func NewAssetStore(db *sqlx.DB) *AssetStore {
	return &AssetStore{db: db}
}

const assetColumns = `id, notion_block_id, notion_url, local_path, file_name, mime_type, size,
	width, height, article_id, last_synced_at, created_at`

func (s *AssetStore) ListByArticle(ctx context.Context, articleID int64) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &assets,
		`SELECT `+assetColumns+` FROM notion_images WHERE article_id = $1 ORDER BY id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// Save inserts the asset, or takes over the row already recorded for its block.
func (s *AssetStore) Save(ctx context.Context, asset *domain.Asset) error {
	query := `
		INSERT INTO notion_images (
			notion_block_id, notion_url, local_path, file_name, mime_type, size,
			width, height, article_id, last_synced_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (notion_block_id) DO UPDATE SET
			notion_url = EXCLUDED.notion_url,
			local_path = EXCLUDED.local_path,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			article_id = EXCLUDED.article_id,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		asset.BlockID,
		asset.RemoteURL,
		asset.LocalPath,
		asset.FileName,
		asset.MimeType,
		asset.Size,
		asset.Width,
		asset.Height,
		asset.ArticleID,
		asset.LastSyncedAt,
		asset.CreatedAt,
	).Scan(&asset.ID)
	if err != nil {
		return fmt.Errorf("save asset for block %s: %w", asset.BlockID, err)
	}
	return nil
}

// Touch records that the asset's block was seen again under remoteURL.
func (s *AssetStore) Touch(ctx context.Context, id int64, remoteURL string, syncedAt time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE notion_images SET notion_url = $1, last_synced_at = $2 WHERE id = $3",
		remoteURL, syncedAt, id)
	if err != nil {
		return fmt.Errorf("touch asset %d: %w", id, err)
	}
	return nil
}

func (s *AssetStore) Delete(ctx context.Context, id int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM notion_images WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete asset %d: %w", id, err)
	}
	return nil
}

// DeleteByArticle removes every asset row of an article and returns the removed rows.
func (s *AssetStore) DeleteByArticle(ctx context.Context, articleID int64) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &assets,
		`DELETE FROM notion_images WHERE article_id = $1 RETURNING `+assetColumns, articleID)
	if err != nil {
		return nil, fmt.Errorf("delete assets of article %d: %w", articleID, err)
	}
	return assets, nil
}
