package publish

import (
	"strings"
	"testing"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Demo Page", "demopage.html"},
		{"My Trip to Japan!", "mytriptojapan.html"},
		{"Already-Hyphenated", "already-hyphenated.html"},
		{"  Spaced  Out  ", "spacedout.html"},
		{"C++ & Go (2026)", "cgo2026.html"},
	}
	for _, tc := range cases {
		if got := Slug(tc.title, 50); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestSlug_CapsLength(t *testing.T) {
	got := Slug(strings.Repeat("a", 80), 50)
	if len(got) != 50+len(".html") {
		t.Errorf("Slug length = %d, want %d", len(got), 50+len(".html"))
	}
}

func TestSlug_EmptyTitleFallsBackToTimestamp(t *testing.T) {
	got := Slug("!!!", 50)
	if !strings.HasPrefix(got, "untitled_") || !strings.HasSuffix(got, ".html") {
		t.Errorf("Slug fallback = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename("my photo (1).jpg"); got != "my_photo__1_.jpg" {
		t.Errorf("sanitizeFilename = %q", got)
	}
}

func TestTitlePrefix_Capped(t *testing.T) {
	got := titlePrefix("A very long page title that keeps going", 20)
	if len(got) != 20 {
		t.Errorf("titlePrefix length = %d, want 20", len(got))
	}
	if strings.ContainsAny(got, " ()") {
		t.Errorf("titlePrefix contains unsafe characters: %q", got)
	}
}
