package markup

import (
	"strings"
	"testing"

	"github.com/mail2site/mail2site/model"
	"github.com/mail2site/mail2site/parser"
)

func TestRender_PlaceholderBecomesImage(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "photo.jpg", ContentType: "image/jpeg"},
	}
	saved := map[int]string{0: "../images/demo_photo.jpg"}

	out := New().Render("Before\n\n"+parser.Placeholder(0)+"\n\nAfter", attachments, saved)

	if !strings.Contains(out, `<img src="../images/demo_photo.jpg"`) {
		t.Errorf("missing inlined image: %q", out)
	}
	if strings.Contains(out, "MEDIA_PLACEHOLDER") {
		t.Errorf("placeholder leaked into output: %q", out)
	}
	if strings.Index(out, "Before") > strings.Index(out, "<img") {
		t.Errorf("media order lost: %q", out)
	}
}

func TestRender_UnsavedAttachmentKeepsText(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "photo.jpg", ContentType: "image/jpeg"},
	}

	out := New().Render("Just text.", attachments, nil)

	if strings.Contains(out, "<img") {
		t.Errorf("unsaved attachment rendered: %q", out)
	}
	if !strings.Contains(out, "Just text.") {
		t.Errorf("text lost: %q", out)
	}
}

func TestRender_QuicktimeVideoGetsMP4Source(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "clip.mov", ContentType: "video/quicktime"},
	}
	saved := map[int]string{0: "../images/demo_clip.mov"}

	out := New().Render(parser.Placeholder(0), attachments, saved)

	if !strings.Contains(out, `type="video/mp4"`) {
		t.Errorf("missing mp4 primary source: %q", out)
	}
	if !strings.Contains(out, `type="video/quicktime"`) {
		t.Errorf("missing quicktime fallback source: %q", out)
	}
}

func TestRender_AudioPlaceholderBecomesPlayer(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "note.mp3", ContentType: "audio/mpeg"},
	}
	saved := map[int]string{0: "../images/demo_note.mp3"}

	out := New().Render("Listen to this:\n\n"+parser.Placeholder(0), attachments, saved)

	if !strings.Contains(out, `<audio controls`) {
		t.Errorf("missing audio player: %q", out)
	}
	if !strings.Contains(out, `src="../images/demo_note.mp3"`) {
		t.Errorf("missing audio source: %q", out)
	}
	if strings.Contains(out, "&lt;audio") {
		t.Errorf("audio markup escaped: %q", out)
	}
}

func TestRender_FirstHeadingDropped(t *testing.T) {
	out := New().Render("# Title\n\nBody text.\n\n# Another Section", nil, nil)

	if strings.Contains(out, "<h1>") {
		t.Errorf("h1 rendered despite page template title: %q", out)
	}
	if !strings.Contains(out, "<h2>Another Section</h2>") {
		t.Errorf("second top-level heading not demoted: %q", out)
	}
	if !strings.Contains(out, "<p>Body text.</p>") {
		t.Errorf("body paragraph missing: %q", out)
	}
}

func TestRender_BoldItalic(t *testing.T) {
	out := New().Render("Hello **world** and *moon*.", nil, nil)

	if !strings.Contains(out, "<p>Hello <strong>world</strong> and <em>moon</em>.</p>") {
		t.Errorf("inline emphasis wrong: %q", out)
	}
}

func TestRender_AlignedHeading(t *testing.T) {
	out := New().Render("[center]## Gallery", nil, nil)

	want := `<div style="text-align: center; margin: 10px 0;"><h2>Gallery</h2></div>`
	if !strings.Contains(out, want) {
		t.Errorf("aligned heading wrong:\n got %q\nwant %q", out, want)
	}
	// The heading stage must not wrap it a second time.
	if strings.Count(out, "<h2>") != 1 {
		t.Errorf("heading rendered twice: %q", out)
	}
}

func TestRender_CenteredMediaUsesFlex(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "photo.png", ContentType: "image/png"},
	}
	saved := map[int]string{0: "../images/p_photo.png"}

	out := New().Render("[center]"+parser.Placeholder(0), attachments, saved)

	if !strings.Contains(out, `display: flex; justify-content: center`) {
		t.Errorf("centered media not flex-wrapped: %q", out)
	}
}

func TestRender_ListRunsShareOneUL(t *testing.T) {
	out := New().Render("- first\n- second\n\nplain\n\n- third", nil, nil)

	if got := strings.Count(out, "<ul>"); got != 2 {
		t.Errorf("ul count = %d, want 2 (one per run): %q", got, out)
	}
	if got := strings.Count(out, "<li>"); got != 3 {
		t.Errorf("li count = %d, want 3: %q", got, out)
	}
}

func TestRender_StandaloneYouTubeEmbeds(t *testing.T) {
	out := New().Render("https://youtu.be/dQw4w9WgXcQ", nil, nil)

	if !strings.Contains(out, "youtube.com/embed/dQw4w9WgXcQ") {
		t.Errorf("standalone link not embedded: %q", out)
	}
}

func TestRender_LinkedYouTubeStaysLink(t *testing.T) {
	out := New().Render("Watch [the talk](https://www.youtube.com/watch?v=abc123) now.", nil, nil)

	if strings.Contains(out, "<iframe") {
		t.Errorf("linked URL wrongly embedded: %q", out)
	}
	if !strings.Contains(out, `<a href="https://www.youtube.com/watch?v=abc123" target="_blank">the talk</a>`) {
		t.Errorf("markdown link not rendered: %q", out)
	}
}

func TestRender_VideoTagBeatsLinkSyntax(t *testing.T) {
	out := New().Render("[VIDEO](https://example.com/clip.mp4)", nil, nil)

	if !strings.Contains(out, "<video controls") {
		t.Errorf("video tag not rendered as player: %q", out)
	}
	if strings.Contains(out, `target="_blank"`) {
		t.Errorf("video tag consumed by link stage: %q", out)
	}
}

func TestRender_ResponsiveBlocks(t *testing.T) {
	out := New().Render("[Desktop]wide layout[/Desktop]\n\n[Mobile]narrow layout[/Mobile]", nil, nil)

	if !strings.Contains(out, `class="desktop-only" style="display: block;`) {
		t.Errorf("desktop block missing: %q", out)
	}
	if !strings.Contains(out, `class="mobile-only" style="display: none; text-align: left;`) {
		t.Errorf("mobile block missing left default: %q", out)
	}
}

func TestRender_CarouselStructure(t *testing.T) {
	attachments := []model.Attachment{
		{Filename: "a.jpg", ContentType: "image/jpeg"},
		{Filename: "b.jpg", ContentType: "image/jpeg"},
	}
	saved := map[int]string{0: "../images/x_a.jpg", 1: "../images/x_b.jpg"}

	content := "[Carousel]\n" + parser.Placeholder(0) + "\n" + parser.Placeholder(1) + "\n[/Carousel]"
	out := New().Render(content, attachments, saved)

	if !strings.Contains(out, "carousel-container") {
		t.Errorf("carousel container missing: %q", out)
	}
	if got := strings.Count(out, `class="carousel-item"`); got < 2 {
		t.Errorf("expected at least 2 slides, got %d: %q", got, out)
	}
	if !strings.Contains(out, "moveCarousel") {
		t.Errorf("carousel controls script missing: %q", out)
	}
}

func TestRender_PlainTextEscaped(t *testing.T) {
	out := New().Render("5 < 6 & 7 > 2", nil, nil)

	if !strings.Contains(out, "5 &lt; 6 &amp; 7 &gt; 2") {
		t.Errorf("text not escaped: %q", out)
	}
}
