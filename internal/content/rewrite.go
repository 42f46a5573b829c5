package content

import "notion_sync/internal/domain"

// RewriteImages returns a copy of the tree where every image block with an entry in
// urls points at that url as an external image. The input tree is not modified.
func RewriteImages(blocks []domain.Block, urls map[string]string) []domain.Block {
	if blocks == nil {
		return nil
	}

	out := make([]domain.Block, len(blocks))
	for i, b := range blocks {
		if img, ok := b.Image(); ok {
			if url, mapped := urls[b.ID]; mapped && !(img.Kind == domain.ImageKindExternal && img.URL == url) {
				b.Content = img.AsExternal(url)
			}
		}
		b.Children = RewriteImages(b.Children, urls)
		out[i] = b
	}
	return out
}
