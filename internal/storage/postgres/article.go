package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"notion_sync/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

const articleColumns = `id, notion_page_id, title, excerpt, content, content_type, image, date,
	read_time, created_at, updated_at, notion_last_edited_at`

// GetBySourcePageID returns nil without error when no article is linked to the page.
func (s *ArticleStore) GetBySourcePageID(ctx context.Context, pageID string) (*domain.Article, error) {
	var article domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article,
		`SELECT `+articleColumns+` FROM articles WHERE notion_page_id = $1`, pageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article by page %s: %w", pageID, err)
	}
	return &article, nil
}

// Upsert inserts the article or updates the one linked to the same page. An update is
// applied only when the stored source timestamp is older than the article's; otherwise
// applied is false and id is the existing row's. The source timestamp itself is left
// untouched until CompleteSync.
func (s *ArticleStore) Upsert(ctx context.Context, article *domain.Article) (int64, bool, error) {
	query := `
		INSERT INTO articles (
			notion_page_id, title, excerpt, content, content_type, image, date,
			read_time, created_at, updated_at, notion_last_edited_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL
		)
		ON CONFLICT (notion_page_id) DO UPDATE SET
			title = EXCLUDED.title,
			excerpt = EXCLUDED.excerpt,
			content = EXCLUDED.content,
			content_type = EXCLUDED.content_type,
			image = EXCLUDED.image,
			date = EXCLUDED.date,
			read_time = EXCLUDED.read_time,
			updated_at = EXCLUDED.updated_at
		WHERE articles.notion_last_edited_at IS NULL
			OR articles.notion_last_edited_at < $11
		RETURNING id`

	exec := GetExecutor(ctx, s.db)

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		article.SourcePageID,
		article.Title,
		article.Excerpt,
		article.Content,
		article.ContentType,
		article.Image,
		article.Date,
		article.ReadTime,
		article.CreatedAt,
		article.UpdatedAt,
		article.SourceLastEditedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM articles WHERE notion_page_id = $1",
			article.SourcePageID,
		).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("lookup superseded article: %w", err)
		}
		return id, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("upsert article: %w", err)
	}

	return id, true, nil
}

// CompleteSync stores the final block tree and records the source timestamp it was
// built from. It is not applied when a newer timestamp is already recorded.
func (s *ArticleStore) CompleteSync(ctx context.Context, id int64, content string, lastEdited time.Time) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE articles SET content = $1, notion_last_edited_at = $2
		WHERE id = $3
			AND (notion_last_edited_at IS NULL OR notion_last_edited_at < $2)`,
		content, lastEdited, id)
	if err != nil {
		return false, fmt.Errorf("complete sync of article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete sync of article %d: %w", id, err)
	}
	return n == 1, nil
}

func (s *ArticleStore) Delete(ctx context.Context, id int64) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM articles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	return nil
}

// ListSourcePageIDs returns the page ids of every synced article.
func (s *ArticleStore) ListSourcePageIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		"SELECT notion_page_id FROM articles WHERE notion_page_id IS NOT NULL ORDER BY date DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list page ids: %w", err)
	}
	return ids, nil
}

// Stats counts synced articles and returns the latest local modification among them.
func (s *ArticleStore) Stats(ctx context.Context) (int, *time.Time, error) {
	var row struct {
		Count       int          `db:"count"`
		LastUpdated sql.NullTime `db:"last_updated"`
	}
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row,
		"SELECT COUNT(*) AS count, MAX(updated_at) AS last_updated FROM articles WHERE notion_page_id IS NOT NULL")
	if err != nil {
		return 0, nil, fmt.Errorf("article stats: %w", err)
	}
	if !row.LastUpdated.Valid {
		return row.Count, nil, nil
	}
	return row.Count, &row.LastUpdated.Time, nil
}
