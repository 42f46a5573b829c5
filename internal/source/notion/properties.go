package notion

import (
	"strconv"
	"strings"
	"time"

	"notion_sync/internal/domain"
)

// PlainText renders the property value as text. Unrecognized kinds yield "".
func (p *Property) PlainText() string {
	if p == nil {
		return ""
	}
	switch p.Type {
	case "title":
		return joinRuns(p.Title)
	case "rich_text":
		return joinRuns(p.RichText)
	case "date":
		if p.Date != nil {
			return p.Date.Start
		}
	case "number":
		if p.Number != nil {
			return strconv.FormatFloat(*p.Number, 'f', -1, 64)
		}
	case "url":
		if p.URL != nil {
			return *p.URL
		}
	case "files":
		if len(p.Files) > 0 {
			return p.Files[0].URL()
		}
	case "last_edited_time":
		return p.LastEditedTime
	case "status":
		if p.Status != nil {
			return p.Status.Name
		}
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	}
	return ""
}

// Time returns the value of date (start) and last_edited_time properties.
func (p *Property) Time() (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	switch p.Type {
	case "date":
		if p.Date == nil {
			return time.Time{}, false
		}
		return parseTime(p.Date.Start)
	case "last_edited_time":
		return parseTime(p.LastEditedTime)
	}
	return time.Time{}, false
}

func joinRuns(runs []domain.RichText) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.PlainText)
	}
	return sb.String()
}

// parseTime accepts full timestamps and the date-only form Notion uses for dates without a time.
func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
