package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion_sync/internal/domain"
)

func TestArticleMessage_JSON(t *testing.T) {
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := newArticleMessage(&domain.ArticleEvent{
		Action:       domain.ActionDelete,
		ArticleID:    9,
		SourcePageID: "P9",
		RunID:        "run-3",
	}, now)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"action": "delete",
		"articleId": 9,
		"sourcePageId": "P9",
		"runId": "run-3",
		"timestamp": "2025-03-01T12:00:00Z"
	}`, string(data))
}
