package assets

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

const hashLength = 12

var mimeToExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
	"image/heic":    ".heic",
	"image/heif":    ".heif",
}

var extToMime = map[string]string{
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
}

// FileName derives the stored file name from the owning block id, so the same block
// always maps to the same file.
func FileName(blockID, mimeType string) string {
	sum := md5.Sum([]byte(blockID))
	return hex.EncodeToString(sum[:])[:hashLength] + ExtensionFor(mimeType)
}

// ExtensionFor maps a MIME type to a file extension, defaulting to .jpg.
func ExtensionFor(mimeType string) string {
	if ext, ok := mimeToExt[strings.ToLower(mimeType)]; ok {
		return ext
	}
	return ".jpg"
}

// MimeFromURL guesses the MIME type from the url path suffix, defaulting to image/jpeg.
func MimeFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "image/jpeg"
	}
	if mt, ok := extToMime[strings.ToLower(path.Ext(u.Path))]; ok {
		return mt
	}
	return "image/jpeg"
}

// IsSourceHosted reports whether url points at Notion's own file hosting, whose
// signed links expire and must be mirrored.
func IsSourceHosted(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "notion") || strings.Contains(lower, "amazonaws")
}

// CoverBlockID is the synthetic block id a page cover is stored under.
func CoverBlockID(pageID string) string {
	return "cover-" + pageID
}
