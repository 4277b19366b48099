// Package markup converts parsed email content into page HTML. Rendering is
// a pure function of its inputs; all I/O (saving media, writing pages) lives
// in the publisher.
package markup

import (
	"fmt"
	"html"
	"path"
	"regexp"
	"strings"

	"github.com/mail2site/mail2site/model"
	"github.com/mail2site/mail2site/parser"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}
var videoExtensions = []string{".mp4", ".mov", ".avi", ".webm"}

func hasAnySuffix(s string, suffixes []string) bool {
	s = strings.ToLower(s)
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Transformer renders content through a fixed stage sequence. Each stage
// consumes the previous stage's output; the order is part of the contract
// (responsive blocks before alignment, alignment before headers, media
// before everything).
type Transformer struct {
	desktopRe   *regexp.Regexp
	mobileRe    *regexp.Regexp
	boldRe      *regexp.Regexp
	italicRe    *regexp.Regexp
	imageRe     *regexp.Regexp
	linkRe      *regexp.Regexp
	videoTagRe  *regexp.Regexp
	youtubeRe   *regexp.Regexp
	listItemRe  *regexp.Regexp
	carouselRe  *regexp.Regexp
	alignOpenRe *regexp.Regexp
}

func New() *Transformer {
	return &Transformer{
		desktopRe:   regexp.MustCompile(`(?is)\[desktop\](.*?)\[/desktop\]`),
		mobileRe:    regexp.MustCompile(`(?is)\[mobile\](.*?)\[/mobile\]`),
		boldRe:      regexp.MustCompile(`\*\*(.*?)\*\*`),
		italicRe:    regexp.MustCompile(`\*(.*?)\*`),
		imageRe:     regexp.MustCompile(`!\[(.*?)\]\((.*?)\)`),
		linkRe:      regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`),
		videoTagRe:  regexp.MustCompile(`(?i)\[VIDEO\]\((.*?)\)`),
		youtubeRe:   regexp.MustCompile(`(?m)^\s*(https?://(?:www\.)?(?:youtube\.com/watch\?\S+|youtu\.be/\S+))\s*$`),
		listItemRe:  regexp.MustCompile(`^- (.*)$`),
		carouselRe:  regexp.MustCompile(`(?is)\[carousel\](.*?)\[/carousel\]`),
		alignOpenRe: regexp.MustCompile(`<div style="(?:text-align:|display: flex)`),
	}
}

// Render produces the final page body. savedPaths maps attachment indexes to
// the web-relative path the publisher saved each media file under.
func (t *Transformer) Render(content string, attachments []model.Attachment, savedPaths map[int]string) string {
	content = t.inlineMedia(content, attachments, savedPaths)

	// Trusted internal markup skips escaping; callers guarantee
	// attacker-controlled text never reaches this path unescaped upstream.
	if !strings.Contains(content, "<img ") && !strings.Contains(content, "<video ") &&
		!strings.Contains(content, "<audio ") {
		content = html.EscapeString(content)
	}

	content = t.responsiveBlocks(content)
	content = t.alignmentLines(content)
	content = t.headers(content)
	content = t.boldRe.ReplaceAllString(content, "<strong>$1</strong>")
	content = t.italicRe.ReplaceAllString(content, "<em>$1</em>")
	content = t.imageRe.ReplaceAllString(content, `<img src="$2" alt="$1" style="max-width: 50vw; height: auto; margin: 10px 0;">`)
	content = t.videoTagRe.ReplaceAllStringFunc(content, func(m string) string {
		url := t.videoTagRe.FindStringSubmatch(m)[1]
		return videoElement(url, "video/mp4")
	})
	content = t.youtubeRe.ReplaceAllStringFunc(content, func(m string) string {
		return youtubeEmbed(strings.TrimSpace(m))
	})
	content = t.linkRe.ReplaceAllString(content, `<a href="$2" target="_blank">$1</a>`)
	content = t.carousels(content)
	content = t.lists(content)
	content = t.paragraphs(content)

	return content
}

// inlineMedia replaces each placeholder token with concrete markup, then
// handles explicit filename references as a backward-compatibility path for
// media that was not resolved via placeholder.
func (t *Transformer) inlineMedia(content string, attachments []model.Attachment, savedPaths map[int]string) string {
	resolved := make(map[int]bool)

	mediaHTML := make(map[int]string, len(attachments))
	for i, attachment := range attachments {
		saved, ok := savedPaths[i]
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(attachment.ContentType, "image/"):
			mediaHTML[i] = fmt.Sprintf(`<img src="%s" alt="%s">`, saved, path.Base(attachment.Filename))
		case strings.HasPrefix(attachment.ContentType, "video/"):
			primary := attachment.ContentType
			if primary == "video/quicktime" {
				// Browsers that refuse quicktime usually play the same
				// container as mp4; keep the declared type as a fallback
				// source.
				primary = "video/mp4"
			}
			mediaHTML[i] = videoElementWithFallback(saved, primary, attachment.ContentType)
		case strings.HasPrefix(attachment.ContentType, "audio/"):
			mediaHTML[i] = fmt.Sprintf(`<audio controls style="width: 100%%; margin: 10px 0;"><source src="%s" type="%s"></audio>`, saved, attachment.ContentType)
		}
	}

	for i, markup := range mediaHTML {
		placeholder := parser.Placeholder(i)
		if strings.Contains(content, placeholder) {
			content = strings.ReplaceAll(content, placeholder, markup)
			resolved[i] = true
		}
	}

	for i, attachment := range attachments {
		if resolved[i] {
			continue
		}
		markup, ok := mediaHTML[i]
		if !ok {
			continue
		}
		for _, ref := range []string{
			"![" + attachment.Filename + "]",
			"[" + attachment.Filename + "]",
			"<" + attachment.Filename + ">",
			attachment.Filename,
		} {
			if strings.Contains(content, ref) {
				content = strings.ReplaceAll(content, ref, markup)
				break
			}
		}
	}

	return content
}

func videoElement(src, mimeType string) string {
	return fmt.Sprintf(`<video controls style="max-width: 100%%; height: auto; margin: 10px 0; border-radius: 8px;" preload="metadata"><source src="%s" type="%s"><p>Your browser doesn't support HTML video. <a href="%s">Download the video</a> instead.</p></video>`, src, mimeType, src)
}

func videoElementWithFallback(src, primaryType, fallbackType string) string {
	return fmt.Sprintf(`<video controls style="max-width: 100%%; height: auto; margin: 10px 0; border-radius: 8px;" preload="metadata">
    <source src="%s" type="%s">
    <source src="%s" type="%s">
    <p>Your browser doesn't support HTML video. <a href="%s">Download the video</a> instead.</p>
</video>`, src, primaryType, src, fallbackType, src)
}

func youtubeEmbed(url string) string {
	id := youtubeID(url)
	return fmt.Sprintf(`<div class="video-container" style="position: relative; padding-bottom: 56.25%%; height: 0; overflow: hidden; margin: 10px 0;"><iframe src="https://www.youtube.com/embed/%s" frameborder="0" allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen style="position: absolute; top: 0; left: 0; width: 100%%; height: 100%%;"></iframe></div>`, id)
}

func youtubeID(url string) string {
	if idx := strings.Index(url, "v="); idx >= 0 {
		id := url[idx+2:]
		if amp := strings.IndexAny(id, "&"); amp >= 0 {
			id = id[:amp]
		}
		return id
	}
	if idx := strings.Index(url, "youtu.be/"); idx >= 0 {
		id := url[idx+len("youtu.be/"):]
		if q := strings.IndexAny(id, "?"); q >= 0 {
			id = id[:q]
		}
		return id
	}
	// Accept an 11-character id verbatim.
	return url
}

// responsiveBlocks wraps [Desktop]/[Mobile] blocks in device-scoped divs.
// Visibility toggling is done by the companion stylesheet keyed on viewport
// width; desktop defaults visible, mobile hidden. An optional leading
// alignment tag inside the block sets text alignment, with mobile defaulting
// to left.
func (t *Transformer) responsiveBlocks(content string) string {
	content = t.desktopRe.ReplaceAllStringFunc(content, func(m string) string {
		block := strings.TrimSpace(t.desktopRe.FindStringSubmatch(m)[1])
		block, align := leadingAlignment(block, "")
		return fmt.Sprintf(`<div class="desktop-only" style="display: block; %smargin: 10px 0;">%s</div>`, align, block)
	})
	content = t.mobileRe.ReplaceAllStringFunc(content, func(m string) string {
		block := strings.TrimSpace(t.mobileRe.FindStringSubmatch(m)[1])
		block, align := leadingAlignment(block, "text-align: left; ")
		return fmt.Sprintf(`<div class="mobile-only" style="display: none; %smargin: 10px 0;">%s</div>`, align, block)
	})
	return content
}

func leadingAlignment(block, fallback string) (string, string) {
	for _, tag := range []struct{ prefix, style string }{
		{"[center]", "text-align: center; "},
		{"[left]", "text-align: left; "},
		{"[right]", "text-align: right; "},
	} {
		if strings.HasPrefix(block, tag.prefix) {
			return strings.TrimSpace(block[len(tag.prefix):]), tag.style
		}
	}
	return block, fallback
}

// alignmentLines handles [center]/[left]/[right] at line start. Markdown
// headings inside the tag render as aligned heading elements; media centers
// via flexbox (text-align does nothing for block images); plain text aligns
// via text-align.
func (t *Transformer) alignmentLines(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	for _, original := range lines {
		line := strings.TrimSpace(original)

		var textAlign, justify string
		switch {
		case strings.HasPrefix(line, "[center]"):
			line, textAlign, justify = strings.TrimSpace(line[len("[center]"):]), "center", "center"
		case strings.HasPrefix(line, "[left]"):
			line, textAlign, justify = strings.TrimSpace(line[len("[left]"):]), "left", "flex-start"
		case strings.HasPrefix(line, "[right]"):
			line, textAlign, justify = strings.TrimSpace(line[len("[right]"):]), "right", "flex-end"
		default:
			out = append(out, original)
			continue
		}

		if line == "" {
			out = append(out, original)
			continue
		}

		switch {
		case strings.HasPrefix(line, "###"):
			out = append(out, fmt.Sprintf(`<div style="text-align: %s; margin: 10px 0;"><h3>%s</h3></div>`, textAlign, strings.TrimSpace(line[3:])))
		case strings.HasPrefix(line, "##"):
			out = append(out, fmt.Sprintf(`<div style="text-align: %s; margin: 10px 0;"><h2>%s</h2></div>`, textAlign, strings.TrimSpace(line[2:])))
		case strings.HasPrefix(line, "#"):
			out = append(out, fmt.Sprintf(`<div style="text-align: %s; margin: 10px 0;"><h1>%s</h1></div>`, textAlign, strings.TrimSpace(line[1:])))
		case looksLikeMedia(line):
			out = append(out, fmt.Sprintf(`<div style="display: flex; justify-content: %s; margin: 10px 0;">%s</div>`, justify, line))
		default:
			out = append(out, fmt.Sprintf(`<div style="text-align: %s; margin: 10px 0;">%s</div>`, textAlign, line))
		}
	}

	return strings.Join(out, "\n")
}

func looksLikeMedia(line string) bool {
	return strings.Contains(line, "<img ") ||
		strings.Contains(line, "<video ") ||
		parser.PlaceholderPattern.MatchString(line) ||
		hasAnySuffix(line, imageExtensions) ||
		hasAnySuffix(line, videoExtensions)
}

// headers converts markdown headings. The first top-level # in the document
// is dropped because the page template already renders the title; every
// subsequent # is demoted to h2 to preserve hierarchy. Lines inside an
// alignment wrapper are skipped; alignment already rendered its heading.
func (t *Transformer) headers(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	firstH1Seen := false
	insideAlignment := false

	for _, line := range lines {
		stripped := strings.TrimSpace(line)

		if insideAlignment {
			out = append(out, line)
			if strings.HasSuffix(stripped, "</div>") {
				insideAlignment = false
			}
			continue
		}
		if t.alignOpenRe.MatchString(line) {
			out = append(out, line)
			if !strings.HasSuffix(stripped, "</div>") {
				insideAlignment = true
			}
			continue
		}

		switch {
		case strings.HasPrefix(stripped, "### "):
			out = append(out, "<h3>"+stripped[4:]+"</h3>")
		case strings.HasPrefix(stripped, "## "):
			out = append(out, "<h2>"+stripped[3:]+"</h2>")
		case strings.HasPrefix(stripped, "# ") && !firstH1Seen:
			firstH1Seen = true
		case strings.HasPrefix(stripped, "# "):
			out = append(out, "<h2>"+stripped[2:]+"</h2>")
		default:
			out = append(out, line)
		}
	}

	return strings.Join(out, "\n")
}

// lists converts "- item" lines to list items and wraps each contiguous run
// in a single <ul>.
func (t *Transformer) lists(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	inList := false

	for _, line := range lines {
		if match := t.listItemRe.FindStringSubmatch(strings.TrimSpace(line)); match != nil {
			if !inList {
				out = append(out, "<ul>")
				inList = true
			}
			out = append(out, "<li>"+match[1]+"</li>")
			continue
		}
		if inList {
			out = append(out, "</ul>")
			inList = false
		}
		out = append(out, line)
	}
	if inList {
		out = append(out, "</ul>")
	}

	return strings.Join(out, "\n")
}
