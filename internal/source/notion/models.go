package notion

import (
	"fmt"

	"notion_sync/internal/domain"
)

// Page represents the Notion page object.
type Page struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	LastEditedTime string              `json:"last_edited_time"`
	Archived       bool                `json:"archived"`
	InTrash        bool                `json:"in_trash"`
	Cover          *File               `json:"cover"`
	Properties     map[string]Property `json:"properties"`
}

// File is a Notion file object: either hosted by Notion ("file") or an external link.
type File struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	File     *FileLink `json:"file,omitempty"`
	External *FileLink `json:"external,omitempty"`
}

type FileLink struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

// URL resolves the file's link regardless of where it is hosted.
func (f *File) URL() string {
	if f == nil {
		return ""
	}
	switch f.Type {
	case "file":
		if f.File != nil {
			return f.File.URL
		}
	case "external":
		if f.External != nil {
			return f.External.URL
		}
	}
	return ""
}

// Property is a page property value. Only the field matching Type is populated.
type Property struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Title          []domain.RichText `json:"title"`
	RichText       []domain.RichText `json:"rich_text"`
	Date           *DateValue        `json:"date"`
	Number         *float64          `json:"number"`
	URL            *string           `json:"url"`
	Files          []File            `json:"files"`
	LastEditedTime string            `json:"last_edited_time"`
	Status         *SelectOption     `json:"status"`
	Select         *SelectOption     `json:"select"`
}

type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type blockListResponse struct {
	Results    []domain.Block `json:"results"`
	HasMore    bool           `json:"has_more"`
	NextCursor *string        `json:"next_cursor"`
}

type pageListResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type queryRequest struct {
	Filter      *queryFilter `json:"filter,omitempty"`
	Sorts       []querySort  `json:"sorts,omitempty"`
	StartCursor string       `json:"start_cursor,omitempty"`
	PageSize    int          `json:"page_size,omitempty"`
}

type queryFilter struct {
	Property string        `json:"property"`
	Status   *equalsFilter `json:"status,omitempty"`
}

type equalsFilter struct {
	Equals string `json:"equals"`
}

type querySort struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

// APIError is the error object returned by the Notion API for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`

	retryAfter string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api: unexpected status: %d", e.StatusCode)
}

// Is lets callers match 404 responses with errors.Is(err, domain.ErrPageNotFound).
func (e *APIError) Is(target error) bool {
	return target == domain.ErrPageNotFound && e.StatusCode == 404
}
