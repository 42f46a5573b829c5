package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTree = `[
  {
    "object": "block",
    "id": "p1",
    "type": "paragraph",
    "has_children": false,
    "paragraph": {"rich_text": [{"type": "text", "plain_text": "Hello "}, {"type": "text", "plain_text": "world"}], "color": "default"}
  },
  {
    "object": "block",
    "id": "img1",
    "type": "image",
    "has_children": false,
    "image": {"caption": [{"plain_text": "a cat"}], "type": "file", "file": {"url": "https://prod-files-secure.s3.amazonaws.com/cat.png", "expiry_time": "2025-01-01T00:00:00.000Z"}}
  },
  {
    "object": "block",
    "id": "t1",
    "type": "toggle",
    "has_children": true,
    "toggle": {"rich_text": [{"plain_text": "More"}]},
    "children": [
      {"object": "block", "id": "eq1", "type": "equation", "has_children": false, "equation": {"expression": "e=mc^2"}}
    ]
  }
]`

func TestParseBlocks_Variants(t *testing.T) {
	blocks, err := ParseBlocks([]byte(sampleTree))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	txt, ok := blocks[0].Text()
	require.True(t, ok)
	require.Len(t, txt.RichText, 2)
	assert.Equal(t, "Hello ", txt.RichText[0].PlainText)

	img, ok := blocks[1].Image()
	require.True(t, ok)
	assert.Equal(t, ImageKindFile, img.Kind)
	assert.Equal(t, "https://prod-files-secure.s3.amazonaws.com/cat.png", img.URL)
	assert.Equal(t, "2025-01-01T00:00:00.000Z", img.ExpiryTime)
	assert.Equal(t, "a cat", img.CaptionText())

	require.Len(t, blocks[2].Children, 1)
	raw, ok := blocks[2].Children[0].Content.(*RawContent)
	require.True(t, ok, "unknown kinds fall back to raw content")
	assert.JSONEq(t, `{"expression": "e=mc^2"}`, string(raw.Raw))
}

func TestEncodeBlocks_RoundTrip(t *testing.T) {
	blocks, err := ParseBlocks([]byte(sampleTree))
	require.NoError(t, err)

	encoded, err := EncodeBlocks(blocks)
	require.NoError(t, err)

	assert.JSONEq(t, sampleTree, encoded)
}

func TestBlock_UnknownTypeWithoutPayload(t *testing.T) {
	var b Block
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","type":"unsupported","has_children":false}`), &b))

	_, isRaw := b.Content.(*RawContent)
	assert.True(t, isRaw)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","type":"unsupported","has_children":false}`, string(out))
}

func TestBlock_ImageWithoutKindKeptRaw(t *testing.T) {
	const in = `{"id":"i","type":"image","has_children":false,"image":{"caption":[],"source":{"url":"https://x.test/a.png"}}}`

	var b Block
	require.NoError(t, json.Unmarshal([]byte(in), &b))

	_, isImage := b.Image()
	assert.False(t, isImage)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestBlock_RichTextOfUnmodeledType(t *testing.T) {
	var b Block
	require.NoError(t, json.Unmarshal([]byte(
		`{"id":"t","type":"template","has_children":false,"template":{"rich_text":[{"plain_text":"Add a task"}]}}`,
	), &b))

	runs := b.RichText()
	require.Len(t, runs, 1)
	assert.Equal(t, "Add a task", runs[0].PlainText)
}

func TestEncodeBlocks_Empty(t *testing.T) {
	encoded, err := EncodeBlocks(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)
}

func TestSyncReport_Add(t *testing.T) {
	var r SyncReport
	r.Add(SyncResult{PageID: "a", Status: StatusSynced})
	r.Add(SyncResult{PageID: "b", Status: StatusSkipped})
	r.Add(SyncResult{PageID: "c", Status: StatusDeleted})
	r.Add(SyncResult{PageID: "d", Status: StatusError})

	assert.Len(t, r.Results, 4)
	assert.Equal(t, 1, r.Synced)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Deleted)
	assert.Equal(t, 1, r.Errors)
}
