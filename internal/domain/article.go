package domain

import "time"

// ContentTypeNotion marks articles whose Content is a JSON-encoded Notion block tree.
const ContentTypeNotion = "notion"

type Article struct {
	ID                 int64      `db:"id" json:"id"`
	SourcePageID       *string    `db:"notion_page_id" json:"sourcePageId,omitempty"`
	Title              string     `db:"title" json:"title"`
	Excerpt            string     `db:"excerpt" json:"excerpt"`
	Content            string     `db:"content" json:"content"`
	ContentType        string     `db:"content_type" json:"contentType"`
	Image              string     `db:"image" json:"image"`
	Date               time.Time  `db:"date" json:"date"`
	ReadTime           int        `db:"read_time" json:"readTime"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
	SourceLastEditedAt *time.Time `db:"notion_last_edited_at" json:"sourceLastEditedAt,omitempty"`
}

// Asset is a locally mirrored copy of an image referenced by an article's block tree.
// BlockID is unique; FileName is derived from it so resyncs overwrite instead of accumulating.
type Asset struct {
	ID           int64     `db:"id" json:"id"`
	BlockID      string    `db:"notion_block_id" json:"blockId"`
	RemoteURL    string    `db:"notion_url" json:"remoteUrl"`
	LocalPath    string    `db:"local_path" json:"localPath"`
	FileName     string    `db:"file_name" json:"fileName"`
	MimeType     string    `db:"mime_type" json:"mimeType"`
	Size         int64     `db:"size" json:"size"`
	Width        *int      `db:"width" json:"width,omitempty"`
	Height       *int      `db:"height" json:"height,omitempty"`
	ArticleID    *int64    `db:"article_id" json:"articleId,omitempty"`
	LastSyncedAt time.Time `db:"last_synced_at" json:"lastSyncedAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// SourcePage is the metadata of one Notion page, already mapped from its properties.
type SourcePage struct {
	ID             string
	Status         string
	Archived       bool
	Title          string
	Excerpt        string
	Date           *time.Time
	Cover          string // page-level cover url (file or external)
	CoverProperty  string // first file of the configured cover property
	LastEditedTime time.Time
}

// ArticleEvent is emitted after a page sync changed the local article set.
type ArticleEvent struct {
	Action       string // "create", "update" or "delete"
	ArticleID    int64
	SourcePageID string
	Title        string
	RunID        string
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)
