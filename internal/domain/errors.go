package domain

import "errors"

var (
	// ErrDataSourceNotConfigured is returned by operations that need the Notion container id.
	ErrDataSourceNotConfigured = errors.New("notion data source id is not configured")

	// ErrPageNotFound is matched by source errors for pages Notion no longer returns.
	ErrPageNotFound = errors.New("notion page not found")
)
