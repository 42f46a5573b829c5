//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"notion_sync/internal/domain"
	"notion_sync/internal/storage/postgres/migrations"
	"notion_sync/internal/testutil"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().Error(migrations.CheckDBMigrationStatus(db.DB))
	s.Require().NoError(migrations.MigrateUp(db.DB))
	s.Require().NoError(migrations.MigrateUp(db.DB), "second run is a no-op")
	s.Require().NoError(migrations.CheckDBMigrationStatus(db.DB))
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM notion_images")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM articles")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func newArticle(pageID string, edited time.Time) *domain.Article {
	return &domain.Article{
		SourcePageID:       testutil.Ptr(pageID),
		Title:              "Test Article",
		Excerpt:            "Excerpt",
		Content:            "[]",
		ContentType:        domain.ContentTypeNotion,
		Image:              "https://picsum.photos/500/400?random=" + pageID,
		Date:               edited,
		ReadTime:           1,
		CreatedAt:          edited,
		UpdatedAt:          edited,
		SourceLastEditedAt: testutil.Ptr(edited),
	}
}

func (s *PostgresIntegrationSuite) TestArticleStore_Upsert_Insert() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, applied, err := store.Upsert(s.ctx, newArticle("page-1", now))
	s.NoError(err)
	s.True(applied)
	s.Greater(id, int64(0))

	got, err := store.GetBySourcePageID(s.ctx, "page-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(id, got.ID)
	s.Equal("Test Article", got.Title)
	s.Equal(domain.ContentTypeNotion, got.ContentType)
	s.Nil(got.SourceLastEditedAt)
}

func (s *PostgresIntegrationSuite) TestArticleStore_GetBySourcePageID_Missing() {
	got, err := NewArticleStore(s.db).GetBySourcePageID(s.ctx, "nope")
	s.NoError(err)
	s.Nil(got)
}

func (s *PostgresIntegrationSuite) TestArticleStore_Upsert_UpdateWhenNewer() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)
	older := now.Add(-1 * time.Hour)

	article := newArticle("page-1", older)
	id1, _, err := store.Upsert(s.ctx, article)
	s.NoError(err)

	article.Title = "Updated Title"
	article.SourceLastEditedAt = testutil.Ptr(now)
	article.UpdatedAt = now
	id2, applied, err := store.Upsert(s.ctx, article)
	s.NoError(err)
	s.True(applied)
	s.Equal(id1, id2)

	var title string
	err = s.db.GetContext(s.ctx, &title, "SELECT title FROM articles WHERE id = $1", id1)
	s.NoError(err)
	s.Equal("Updated Title", title)
}

func (s *PostgresIntegrationSuite) TestArticleStore_Upsert_SkipWhenNotNewer() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	article := newArticle("page-1", now)
	article.Title = "Newer Title"
	id1, _, err := store.Upsert(s.ctx, article)
	s.NoError(err)
	applied, err := store.CompleteSync(s.ctx, id1, article.Content, now)
	s.NoError(err)
	s.True(applied)

	for _, edited := range []time.Time{now, now.Add(-time.Hour)} {
		stale := newArticle("page-1", edited)
		stale.Title = "Stale Title"
		id2, applied, err := store.Upsert(s.ctx, stale)
		s.NoError(err)
		s.False(applied)
		s.Equal(id1, id2)
	}

	var title string
	err = s.db.GetContext(s.ctx, &title, "SELECT title FROM articles WHERE id = $1", id1)
	s.NoError(err)
	s.Equal("Newer Title", title)
}

func (s *PostgresIntegrationSuite) TestArticleStore_CompleteSyncAndDelete() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, _, err := store.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)

	applied, err := store.CompleteSync(s.ctx, id, `[{"id":"b1"}]`, now)
	s.NoError(err)
	s.True(applied)

	got, err := store.GetBySourcePageID(s.ctx, "page-1")
	s.Require().NoError(err)
	s.Equal(`[{"id":"b1"}]`, got.Content)
	s.Require().NotNil(got.SourceLastEditedAt)
	s.True(now.Equal(*got.SourceLastEditedAt))

	applied, err = store.CompleteSync(s.ctx, id, `[{"id":"stale"}]`, now.Add(-time.Hour))
	s.NoError(err)
	s.False(applied)

	s.NoError(store.Delete(s.ctx, id))
	got, err = store.GetBySourcePageID(s.ctx, "page-1")
	s.NoError(err)
	s.Nil(got)
}

func (s *PostgresIntegrationSuite) TestArticleStore_IncompleteSyncIsRedone() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id1, applied, err := store.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)
	s.True(applied)

	retry := newArticle("page-1", now)
	retry.Title = "Retried"
	id2, applied, err := store.Upsert(s.ctx, retry)
	s.NoError(err)
	s.True(applied)
	s.Equal(id1, id2)

	got, err := store.GetBySourcePageID(s.ctx, "page-1")
	s.Require().NoError(err)
	s.Equal("Retried", got.Title)
	s.Nil(got.SourceLastEditedAt)
}

func (s *PostgresIntegrationSuite) TestArticleStore_ListAndStats() {
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	count, last, err := store.Stats(s.ctx)
	s.NoError(err)
	s.Equal(0, count)
	s.Nil(last)

	for i, id := range []string{"page-1", "page-2", "page-3"} {
		a := newArticle(id, now.Add(time.Duration(i)*time.Hour))
		_, _, err := store.Upsert(s.ctx, a)
		s.Require().NoError(err)
	}
	_, err = s.db.ExecContext(s.ctx, "INSERT INTO articles (title) VALUES ('hand written')")
	s.Require().NoError(err)

	ids, err := store.ListSourcePageIDs(s.ctx)
	s.NoError(err)
	s.Equal([]string{"page-3", "page-2", "page-1"}, ids)

	count, last, err = store.Stats(s.ctx)
	s.NoError(err)
	s.Equal(3, count)
	s.Require().NotNil(last)
	s.True(now.Add(2 * time.Hour).Equal(*last))
}

func (s *PostgresIntegrationSuite) TestAssetStore_SaveTouchList() {
	articles := NewArticleStore(s.db)
	assets := NewAssetStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	articleID, _, err := articles.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)

	asset := &domain.Asset{
		BlockID:      "block-1",
		RemoteURL:    "https://s3.amazonaws.com/a.png?sig=1",
		LocalPath:    "/uploads/notion/abc.png",
		FileName:     "abc.png",
		MimeType:     "image/png",
		Size:         42,
		Width:        testutil.Ptr(10),
		Height:       testutil.Ptr(20),
		ArticleID:    &articleID,
		LastSyncedAt: now,
		CreatedAt:    now,
	}
	s.Require().NoError(assets.Save(s.ctx, asset))
	s.Greater(asset.ID, int64(0))

	again := *asset
	again.ID = 0
	s.Require().NoError(assets.Save(s.ctx, &again))
	s.Equal(asset.ID, again.ID, "one row per block")

	later := now.Add(time.Hour)
	s.NoError(assets.Touch(s.ctx, asset.ID, "https://s3.amazonaws.com/a.png?sig=2", later))

	rows, err := assets.ListByArticle(s.ctx, articleID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("https://s3.amazonaws.com/a.png?sig=2", rows[0].RemoteURL)
	s.True(later.Equal(rows[0].LastSyncedAt))
	s.Equal(10, *rows[0].Width)

	s.NoError(assets.Delete(s.ctx, asset.ID))
	rows, err = assets.ListByArticle(s.ctx, articleID)
	s.NoError(err)
	s.Empty(rows)
}

func (s *PostgresIntegrationSuite) TestAssetStore_ArticleDeleteSetsNull() {
	articles := NewArticleStore(s.db)
	assets := NewAssetStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	articleID, _, err := articles.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)
	s.Require().NoError(assets.Save(s.ctx, &domain.Asset{
		BlockID: "block-1", RemoteURL: "u", LocalPath: "/uploads/notion/x.png", FileName: "x.png",
		MimeType: "image/png", ArticleID: &articleID, LastSyncedAt: now, CreatedAt: now,
	}))

	s.Require().NoError(articles.Delete(s.ctx, articleID))

	var orphaned int
	s.NoError(s.db.GetContext(s.ctx, &orphaned, "SELECT COUNT(*) FROM notion_images WHERE article_id IS NULL"))
	s.Equal(1, orphaned)
}

func (s *PostgresIntegrationSuite) TestAssetStore_DeleteByArticle() {
	articles := NewArticleStore(s.db)
	assets := NewAssetStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	a1, _, err := articles.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)
	a2, _, err := articles.Upsert(s.ctx, newArticle("page-2", now))
	s.Require().NoError(err)

	for i, owner := range []int64{a1, a1, a2} {
		owner := owner
		s.Require().NoError(assets.Save(s.ctx, &domain.Asset{
			BlockID: "block-" + string(rune('a'+i)), RemoteURL: "u", LocalPath: "/p", FileName: "f",
			MimeType: "image/png", ArticleID: &owner, LastSyncedAt: now, CreatedAt: now,
		}))
	}

	released, err := assets.DeleteByArticle(s.ctx, a1)
	s.NoError(err)
	s.Len(released, 2)

	rest, err := assets.ListByArticle(s.ctx, a2)
	s.NoError(err)
	s.Len(rest, 1)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewArticleStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, _, err := store.Upsert(ctx, newArticle("page-1", now))
		return err
	})
	s.NoError(err)

	got, err := store.GetBySourcePageID(s.ctx, "page-1")
	s.NoError(err)
	s.NotNil(got)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	articles := NewArticleStore(s.db)
	assets := NewAssetStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, _, err := articles.Upsert(s.ctx, newArticle("page-1", now))
	s.Require().NoError(err)

	boom := errors.New("boom")
	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := assets.DeleteByArticle(ctx, id); err != nil {
			return err
		}
		if err := articles.Delete(ctx, id); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := articles.GetBySourcePageID(s.ctx, "page-1")
	s.NoError(err)
	s.NotNil(got, "delete must be rolled back")
}
