package content

import "notion_sync/internal/domain"

// ImageRef is an image block found in a content tree.
type ImageRef struct {
	BlockID string
	URL     string
	Kind    string
	Caption string
}

// External reports whether the image is hosted outside Notion.
func (r ImageRef) External() bool {
	return r.Kind == domain.ImageKindExternal
}

// ExtractImages walks the tree depth first and returns every image block with a url.
func ExtractImages(blocks []domain.Block) []ImageRef {
	var refs []ImageRef
	walkImages(blocks, &refs)
	return refs
}

func walkImages(blocks []domain.Block, refs *[]ImageRef) {
	for i := range blocks {
		if img, ok := blocks[i].Image(); ok && img.URL != "" {
			*refs = append(*refs, ImageRef{
				BlockID: blocks[i].ID,
				URL:     img.URL,
				Kind:    img.Kind,
				Caption: img.CaptionText(),
			})
		}
		walkImages(blocks[i].Children, refs)
	}
}
