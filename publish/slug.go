package publish

import (
	"regexp"
	"strings"
	"time"
)

var (
	slugStripRe    = regexp.MustCompile(`[^a-z0-9 -]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	fileSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// Slug derives the page filename from a title: lowercase, characters outside
// [a-z0-9 -] stripped, whitespace removed, length capped, ".html" suffix.
// Empty titles get a timestamp-based fallback so two untitled messages never
// collide on the same file.
func Slug(title string, maxLen int) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "-")
	if maxLen > 0 && len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "untitled_" + time.Now().Format("20060102_150405")
	}
	return s + ".html"
}

// sanitizeFilename makes an attachment name safe for the images directory.
func sanitizeFilename(name string) string {
	return fileSanitizeRe.ReplaceAllString(name, "_")
}

// titlePrefix builds the per-page prefix that keeps media filenames from
// different pages apart.
func titlePrefix(title string, maxLen int) string {
	prefix := fileSanitizeRe.ReplaceAllString(strings.ToLower(title), "_")
	if maxLen > 0 && len(prefix) > maxLen {
		prefix = prefix[:maxLen]
	}
	return prefix
}
