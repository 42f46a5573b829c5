package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"notion_sync/internal/domain"
)

// RetrievePage fetches a page and maps its properties onto a SourcePage.
func (s *Source) RetrievePage(ctx context.Context, pageID string) (*domain.SourcePage, error) {
	var page Page
	if err := s.do(ctx, http.MethodGet, "/pages/"+url.PathEscape(pageID), nil, nil, &page); err != nil {
		return nil, fmt.Errorf("retrieve page %s: %w", pageID, err)
	}
	return s.transform(page)
}

// QueryPublishedPageIDs lists the ids of every page in the configured container whose
// status property equals the published value, newest date first.
func (s *Source) QueryPublishedPageIDs(ctx context.Context) ([]string, error) {
	if s.dataSourceID == "" {
		return nil, domain.ErrDataSourceNotConfigured
	}

	path := fmt.Sprintf("/data_sources/%s/query", url.PathEscape(s.dataSourceID))
	if s.containerKind == "database" {
		path = fmt.Sprintf("/databases/%s/query", url.PathEscape(s.dataSourceID))
	}

	req := queryRequest{
		Filter: &queryFilter{
			Property: s.props.Status,
			Status:   &equalsFilter{Equals: s.publishedStatus},
		},
		Sorts:    []querySort{{Property: s.props.Date, Direction: "descending"}},
		PageSize: s.pageSize,
	}

	var ids []string
	for page := 0; ; page++ {
		var resp pageListResponse
		if err := s.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
			return nil, fmt.Errorf("query pages (page %d): %w", page, err)
		}

		for _, p := range resp.Results {
			ids = append(ids, p.ID)
		}

		s.logger.Debug("queried pages",
			"page", page,
			"pages", len(resp.Results),
			"total", len(ids),
		)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		req.StartCursor = *resp.NextCursor
	}

	return ids, nil
}

func (s *Source) transform(p Page) (*domain.SourcePage, error) {
	lastEdited, err := time.Parse(time.RFC3339, p.LastEditedTime)
	if err != nil {
		return nil, fmt.Errorf("parse last_edited_time %q of page %s: %w", p.LastEditedTime, p.ID, err)
	}

	page := &domain.SourcePage{
		ID:             p.ID,
		Archived:       p.Archived || p.InTrash,
		Title:          s.property(p, s.props.Title).PlainText(),
		Excerpt:        s.property(p, s.props.Excerpt).PlainText(),
		Status:         s.property(p, s.props.Status).PlainText(),
		Cover:          p.Cover.URL(),
		CoverProperty:  s.property(p, s.props.Cover).PlainText(),
		LastEditedTime: lastEdited,
	}

	if page.Title == "" {
		page.Title = "Untitled"
	}

	if date, ok := s.property(p, s.props.Date).Time(); ok {
		page.Date = &date
	} else if raw := s.property(p, s.props.Date).PlainText(); raw != "" {
		s.logger.Warn("failed to parse date",
			"page_id", p.ID,
			"date", raw,
		)
	}

	return page, nil
}

func (s *Source) property(p Page, name string) *Property {
	prop, ok := p.Properties[name]
	if !ok {
		return nil
	}
	return &prop
}
