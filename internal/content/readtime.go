package content

import (
	"unicode/utf8"

	"notion_sync/internal/domain"
)

// CharsPerMinute is the reading speed used for read time estimates.
const CharsPerMinute = 400

// EstimateReadTime returns the minutes needed to read the rich text of every block in
// the tree, rounded up, never less than one.
func EstimateReadTime(blocks []domain.Block) int {
	chars := countChars(blocks)
	minutes := (chars + CharsPerMinute - 1) / CharsPerMinute
	return max(minutes, 1)
}

func countChars(blocks []domain.Block) int {
	var n int
	for i := range blocks {
		for _, run := range blocks[i].RichText() {
			n += utf8.RuneCountInString(run.PlainText)
		}
		n += countChars(blocks[i].Children)
	}
	return n
}
