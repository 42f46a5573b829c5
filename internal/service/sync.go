package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notion_sync/internal/assets"
	"notion_sync/internal/content"
	"notion_sync/internal/domain"
)

const (
	reasonNotModified  = "not modified"
	reasonNotPublished = "not published"
	reasonSuperseded   = "superseded by a newer sync"
)

type Config struct {
	PageDelay       time.Duration
	PublishedStatus string
	// PlaceholderURL is a format string receiving the page id.
	PlaceholderURL string
}

type SyncService struct {
	source    Source
	articles  ArticleStore
	mirror    AssetMirror
	txManager TransactionManager
	publisher Publisher
	clock     domain.Clock
	ids       domain.IDGenerator
	locks     *pageLocks
	logger    *slog.Logger
	config    Config
}

func NewSyncService(
	source Source,
	articles ArticleStore,
	mirror AssetMirror,
	txManager TransactionManager,
	publisher Publisher,
	clock domain.Clock,
	ids domain.IDGenerator,
	logger *slog.Logger,
	cfg Config,
) *SyncService {
	return &SyncService{
		source:    source,
		articles:  articles,
		mirror:    mirror,
		txManager: txManager,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		locks:     newPageLocks(),
		logger:    logger.With("source", source.ID()),
		config:    cfg,
	}
}

// SyncAll reconciles every published page plus every locally known page the query no
// longer returns, one page at a time. Per-page failures are recorded in the report.
func (s *SyncService) SyncAll(ctx context.Context) (*domain.SyncReport, error) {
	if !s.source.Configured() {
		return nil, domain.ErrDataSourceNotConfigured
	}

	start := s.clock.Now()
	report := &domain.SyncReport{RunID: s.ids.New(), Results: []domain.SyncResult{}}
	logger := s.logger.With("run_id", report.RunID)

	logger.Info("starting full sync", "source_name", s.source.Name())

	published, err := s.source.QueryPublishedPageIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("query published pages: %w", err)
	}

	local, err := s.articles.ListSourcePageIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local pages: %w", err)
	}

	pageIDs := mergeIDs(published, local)
	logger.Info("pages to reconcile",
		"published", len(published),
		"local", len(local),
		"total", len(pageIDs),
	)

	for i, pageID := range pageIDs {
		if i > 0 {
			if err := sleep(ctx, s.config.PageDelay); err != nil {
				report.Duration = s.clock.Now().Sub(start)
				return report, fmt.Errorf("full sync interrupted: %w", err)
			}
		}

		result, err := s.syncPage(ctx, pageID, report.RunID)
		if err != nil {
			logger.Error("page sync failed", "page_id", pageID, "error", err)
		}
		report.Add(result)
	}

	report.Duration = s.clock.Now().Sub(start)

	logger.Info("full sync completed",
		"synced", report.Synced,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"errors", report.Errors,
		"duration", report.Duration,
	)

	return report, nil
}

// SyncPage reconciles one page. On failure the returned result carries the error too.
func (s *SyncService) SyncPage(ctx context.Context, pageID string) (domain.SyncResult, error) {
	return s.syncPage(ctx, pageID, s.ids.New())
}

func (s *SyncService) syncPage(ctx context.Context, pageID, runID string) (domain.SyncResult, error) {
	unlock := s.locks.Lock(pageID)
	defer unlock()

	logger := s.logger.With("page_id", pageID, "run_id", runID)

	result, err := s.reconcile(ctx, pageID, runID, logger)
	if err != nil {
		return domain.SyncResult{
			PageID: pageID,
			Status: domain.StatusError,
			Title:  result.Title,
			Error:  err.Error(),
		}, err
	}

	logger.Info("page reconciled",
		"status", result.Status,
		"reason", result.Reason,
		"article_id", result.ArticleID,
		"images", result.ImageCount,
	)
	return result, nil
}

func (s *SyncService) reconcile(ctx context.Context, pageID, runID string, logger *slog.Logger) (domain.SyncResult, error) {
	result := domain.SyncResult{PageID: pageID}

	page, err := s.source.RetrievePage(ctx, pageID)
	missing := errors.Is(err, domain.ErrPageNotFound)
	if err != nil && !missing {
		return result, fmt.Errorf("retrieve page: %w", err)
	}

	existing, err := s.articles.GetBySourcePageID(ctx, pageID)
	if err != nil {
		return result, fmt.Errorf("load article: %w", err)
	}

	if missing || page.Archived {
		logger.Debug("page is gone from notion", "missing", missing)
		return s.unpublish(ctx, result, existing, runID)
	}

	result.Title = page.Title

	if existing != nil && existing.SourceLastEditedAt != nil && !existing.SourceLastEditedAt.Before(page.LastEditedTime) {
		result.Status = domain.StatusSkipped
		result.Reason = reasonNotModified
		result.ArticleID = existing.ID
		return result, nil
	}

	if page.Status != s.config.PublishedStatus {
		return s.unpublish(ctx, result, existing, runID)
	}

	return s.publish(ctx, result, page, existing, runID, logger)
}

func (s *SyncService) unpublish(ctx context.Context, result domain.SyncResult, existing *domain.Article, runID string) (domain.SyncResult, error) {
	if existing == nil {
		result.Status = domain.StatusSkipped
		result.Reason = reasonNotPublished
		return result, nil
	}

	if result.Title == "" {
		result.Title = existing.Title
	}

	var released []domain.Asset
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if released, err = s.mirror.Release(txCtx, existing.ID); err != nil {
			return err
		}
		return s.articles.Delete(txCtx, existing.ID)
	})
	if err != nil {
		return result, fmt.Errorf("delete article %d: %w", existing.ID, err)
	}

	s.mirror.Discard(ctx, released, existing.Image)

	result.Status = domain.StatusDeleted
	result.ArticleID = existing.ID
	s.notify(ctx, domain.ActionDelete, result, runID)
	return result, nil
}

func (s *SyncService) publish(
	ctx context.Context,
	result domain.SyncResult,
	page *domain.SourcePage,
	existing *domain.Article,
	runID string,
	logger *slog.Logger,
) (domain.SyncResult, error) {
	blocks, err := s.source.FetchBlockTree(ctx, page.ID)
	if err != nil {
		return result, fmt.Errorf("fetch blocks: %w", err)
	}

	encoded, err := domain.EncodeBlocks(blocks)
	if err != nil {
		return result, err
	}

	now := s.clock.Now()
	date := now
	if page.Date != nil {
		date = *page.Date
	}
	lastEdited := page.LastEditedTime

	article := &domain.Article{
		SourcePageID:       &page.ID,
		Title:              page.Title,
		Excerpt:            page.Excerpt,
		Content:            encoded,
		ContentType:        domain.ContentTypeNotion,
		Image:              s.resolveCover(ctx, page, logger),
		Date:               date,
		ReadTime:           content.EstimateReadTime(blocks),
		CreatedAt:          now,
		UpdatedAt:          now,
		SourceLastEditedAt: &lastEdited,
	}

	articleID, applied, err := s.articles.Upsert(ctx, article)
	if err != nil {
		return result, err
	}
	result.ArticleID = articleID

	if !applied {
		result.Status = domain.StatusSkipped
		result.Reason = reasonSuperseded
		return result, nil
	}

	mapping, err := s.mirror.Sync(ctx, articleID, blocks)
	if err != nil {
		return result, fmt.Errorf("sync assets: %w", err)
	}

	final := encoded
	if len(mapping) > 0 {
		if final, err = domain.EncodeBlocks(content.RewriteImages(blocks, mapping)); err != nil {
			return result, err
		}
	}

	// The source timestamp is recorded only here so an interrupted pass is redone.
	applied, err = s.articles.CompleteSync(ctx, articleID, final, lastEdited)
	if err != nil {
		return result, err
	}
	if !applied {
		result.Status = domain.StatusSkipped
		result.Reason = reasonSuperseded
		return result, nil
	}

	if existing != nil && existing.Image != article.Image {
		s.mirror.Discard(ctx, nil, existing.Image)
	}

	result.Status = domain.StatusSynced
	result.ImageCount = len(mapping)

	action := domain.ActionUpdate
	if existing == nil {
		action = domain.ActionCreate
	}
	s.notify(ctx, action, result, runID)
	return result, nil
}

// resolveCover picks the page cover, then the cover property, then a placeholder keyed
// by the page id. Notion-hosted covers are mirrored; if that fails the remote url is kept.
func (s *SyncService) resolveCover(ctx context.Context, page *domain.SourcePage, logger *slog.Logger) string {
	url := page.Cover
	if url == "" {
		url = page.CoverProperty
	}
	if url == "" {
		return fmt.Sprintf(s.config.PlaceholderURL, page.ID)
	}
	if !assets.IsSourceHosted(url) {
		return url
	}

	local, err := s.mirror.MirrorCover(ctx, page.ID, url)
	if err != nil {
		logger.Warn("failed to mirror cover, keeping remote url", "error", err)
		return url
	}
	return local
}

func (s *SyncService) notify(ctx context.Context, action string, result domain.SyncResult, runID string) {
	if s.publisher == nil {
		return
	}
	event := &domain.ArticleEvent{
		Action:       action,
		ArticleID:    result.ArticleID,
		SourcePageID: result.PageID,
		Title:        result.Title,
		RunID:        runID,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish article event",
			"page_id", result.PageID,
			"action", action,
			"error", err,
		)
	}
}

// Status summarizes the synced article set.
func (s *SyncService) Status(ctx context.Context) (*domain.SourceStats, error) {
	count, last, err := s.articles.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("article stats: %w", err)
	}
	return &domain.SourceStats{
		ArticleCount:       count,
		LastSyncedAt:       last,
		DatabaseConfigured: s.source.Configured(),
	}, nil
}

// mergeIDs returns primary followed by the ids of extra it does not contain.
func mergeIDs(primary, extra []string) []string {
	seen := make(map[string]bool, len(primary)+len(extra))
	out := make([]string, 0, len(primary)+len(extra))
	for _, ids := range [][]string{primary, extra} {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
