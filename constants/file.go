package constants

import "strings"

// Accepted upload content types.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeWEBP = "image/webp"
)

// AllowedContentTypes holds the default image types accepted for review.
var AllowedContentTypes = []string{ContentTypeJPEG, ContentTypePNG, ContentTypeWEBP}

// ExtensionContentTypes maps lowercase file extensions (no dot) to content types.
var ExtensionContentTypes = map[string]string{
	"jpg":  ContentTypeJPEG,
	"jpeg": ContentTypeJPEG,
	"png":  ContentTypePNG,
	"webp": ContentTypeWEBP,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt returns the accepted content type for an extension, or "".
func ContentTypeForExt(ext string) string {
	return ExtensionContentTypes[NormalizeExt(ext)]
}

// NormalizeContentType drops parameters (";charset=...") and lowercases.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
