package domain

import "time"

type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusSkipped SyncStatus = "skipped"
	StatusDeleted SyncStatus = "deleted"
	StatusError   SyncStatus = "error"
)

// SyncResult is the outcome of reconciling one page.
type SyncResult struct {
	PageID     string     `json:"pageId"`
	Status     SyncStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Title      string     `json:"title,omitempty"`
	ArticleID  int64      `json:"articleId,omitempty"`
	ImageCount int        `json:"imageCount,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// SyncReport holds statistics about a full sync pass.
type SyncReport struct {
	RunID    string        `json:"runId"`
	Results  []SyncResult  `json:"results"`
	Synced   int           `json:"synced"`
	Skipped  int           `json:"skipped"`
	Deleted  int           `json:"deleted"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Add records a page result and bumps the matching counter.
func (r *SyncReport) Add(result SyncResult) {
	r.Results = append(r.Results, result)
	switch result.Status {
	case StatusSynced:
		r.Synced++
	case StatusSkipped:
		r.Skipped++
	case StatusDeleted:
		r.Deleted++
	case StatusError:
		r.Errors++
	}
}

// SourceStats describes the synced article set for the status endpoint.
type SourceStats struct {
	ArticleCount       int        `json:"notionArticleCount"`
	LastSyncedAt       *time.Time `json:"lastSyncedAt"`
	DatabaseConfigured bool       `json:"databaseConfigured"`
}
