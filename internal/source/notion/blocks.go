package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"notion_sync/internal/domain"
)

// Blocks that flag children but whose children belong to another page.
var foreignChildren = map[string]bool{
	"child_page":     true,
	"child_database": true,
}

// FetchBlockTree lists a block's children, following the pagination cursor, and
// recursively attaches the children of every block that has them. Any failed call
// aborts the whole tree.
func (s *Source) FetchBlockTree(ctx context.Context, blockID string) ([]domain.Block, error) {
	blocks, err := s.listChildren(ctx, blockID)
	if err != nil {
		return nil, err
	}

	for i := range blocks {
		if !blocks[i].HasChildren || foreignChildren[blocks[i].Type] {
			continue
		}
		children, err := s.FetchBlockTree(ctx, blocks[i].ID)
		if err != nil {
			return nil, err
		}
		blocks[i].Children = children
	}

	return blocks, nil
}

func (s *Source) listChildren(ctx context.Context, blockID string) ([]domain.Block, error) {
	path := "/blocks/" + url.PathEscape(blockID) + "/children"

	var all []domain.Block
	cursor := ""
	for page := 0; ; page++ {
		query := url.Values{"page_size": []string{strconv.Itoa(s.pageSize)}}
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}

		var resp blockListResponse
		if err := s.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, fmt.Errorf("list children of %s (page %d): %w", blockID, page, err)
		}

		all = append(all, resp.Results...)

		s.logger.Debug("fetched block page",
			"block_id", blockID,
			"page", page,
			"blocks", len(resp.Results),
			"total", len(all),
		)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}

	return all, nil
}
