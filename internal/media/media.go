// Package media provides naming and classification helpers for synced media.
package media

import (
	"path"
	"strings"
)

// Kind classifies a file by extension.
type Kind int

const (
	// Unrecognized files are excluded from sync entirely.
	Unrecognized Kind = iota
	Image
	Video
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Video:
		return "video"
	default:
		return "unrecognized"
	}
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
}

// invalidChars are replaced when a collection name becomes a directory name.
const invalidChars = `<>:"/\|?* `

// SanitizeName turns a collection name into a remote directory name.
func SanitizeName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)
	return strings.TrimSpace(sanitized)
}

// CollectionDir returns the sanitized directory name for a collection and
// whether it can take part in syncing. Empty names, "." and ".." and hidden
// names cannot.
func CollectionDir(name string) (string, bool) {
	dir := SanitizeName(name)
	return dir, dir != "" && !strings.HasPrefix(dir, ".")
}

// Classify reports whether name is an image, a video or neither.
func Classify(name string) Kind {
	ext := strings.ToLower(path.Ext(name))
	if _, ok := imageTypes[ext]; ok {
		return Image
	}
	if _, ok := videoTypes[ext]; ok {
		return Video
	}
	return Unrecognized
}

// IsMedia is shorthand for Classify(name) != Unrecognized.
func IsMedia(name string) bool {
	return Classify(name) != Unrecognized
}

// MimeType returns the MIME type for a media file name.
func MimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := imageTypes[ext]; ok {
		return t
	}
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
