package parser

import (
	"mime"
	"strings"
)

// PartKind is the closed classification of a MIME part. Every part maps to
// exactly one kind; the walk switches exhaustively on it.
type PartKind int

const (
	// TextPart is text/plain or text/html body content.
	TextPart PartKind = iota
	// MediaPart is an image, video, or audio part, inline or attached.
	MediaPart
	// OtherPart is anything else (multipart containers, calendars, signatures).
	OtherPart
)

func classifyPart(contentType string) PartKind {
	switch {
	case contentType == "text/plain", contentType == "text/html":
		return TextPart
	case strings.HasPrefix(contentType, "image/"),
		strings.HasPrefix(contentType, "video/"),
		strings.HasPrefix(contentType, "audio/"):
		return MediaPart
	default:
		return OtherPart
	}
}

// commonExtensions resolves the frequent media types directly so synthesized
// filenames stay predictable; mime.ExtensionsByType is platform-dependent
// for some of these (jpeg in particular).
var commonExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"audio/wav":       ".wav",
	"audio/ogg":       ".ogg",
}

func extensionFor(contentType string) string {
	if ext, ok := commonExtensions[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
