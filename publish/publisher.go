// Package publish owns the durable artifacts: page files, saved media, and
// the homepage tile list. All writes are overwrite-style so republishing a
// title is idempotent.
package publish

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mail2site/mail2site/model"
)

//go:embed templates/page.html.tmpl
var templateFS embed.FS

// Options carries the directory layout and fallback values.
type Options struct {
	PagesDir            string
	ImagesDir           string
	IndexPath           string
	DefaultImage        string
	DescriptionTemplate string
	MaxTitlePrefixLen   int
	MaxSlugLen          int
}

type Publisher struct {
	opts   Options
	logger *slog.Logger
	tmpl   *template.Template

	cleanupRe  *regexp.Regexp
	tagStripRe *regexp.Regexp
	linkRe     *regexp.Regexp
	sentenceRe *regexp.Regexp
}

func New(opts Options, logger *slog.Logger) (*Publisher, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Publisher{
		opts:       opts,
		logger:     logger,
		tmpl:       tmpl,
		cleanupRe:  regexp.MustCompile("[#*`_]"),
		tagStripRe: regexp.MustCompile(`<[^>]+>`),
		linkRe:     regexp.MustCompile(`\[.*?\]\(.*?\)`),
		sentenceRe: regexp.MustCompile(`[.!?]+`),
	}, nil
}

// Filename returns the slug-derived page filename for a title.
func (p *Publisher) Filename(title string) string {
	return Slug(title, p.opts.MaxSlugLen)
}

// SaveMedia writes every attachment into the images directory under a
// `<title-prefix>_<sanitized-name>` filename and returns the web-relative
// path per attachment index (as referenced from a page under Pages/). A
// single unwritable attachment is logged and skipped, not fatal.
func (p *Publisher) SaveMedia(parsed model.ParsedEmail) (map[int]string, []string) {
	if len(parsed.Attachments) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.opts.ImagesDir, 0o755); err != nil {
		if p.logger != nil {
			p.logger.Error("create images directory failed", "dir", p.opts.ImagesDir, "err", err)
		}
		return nil, nil
	}

	prefix := titlePrefix(parsed.Title, p.opts.MaxTitlePrefixLen)
	savedPaths := make(map[int]string, len(parsed.Attachments))
	var savedFiles []string

	for i, attachment := range parsed.Attachments {
		if len(attachment.Data) == 0 {
			continue
		}
		name := prefix + "_" + sanitizeFilename(path.Base(attachment.Filename))
		target := filepath.Join(p.opts.ImagesDir, name)
		if err := os.WriteFile(target, attachment.Data, 0o644); err != nil {
			if p.logger != nil {
				p.logger.Error("save attachment failed", "filename", name, "err", err)
			}
			continue
		}
		webPath := "../images/" + name
		savedPaths[i] = webPath
		savedFiles = append(savedFiles, webPath)
		if p.logger != nil {
			p.logger.Info("saved attachment", "filename", name, "size", humanize.Bytes(uint64(len(attachment.Data))))
		}
	}
	return savedPaths, savedFiles
}

// Publish writes the page file, upserts the homepage tile, and patches the
// navigation. The rendered body is produced by the markup transformer and
// passed in; Publish performs only I/O and selection logic.
func (p *Publisher) Publish(parsed model.ParsedEmail, contentHTML string, savedFiles []string) (model.PublishResult, error) {
	filename := p.Filename(parsed.Title)
	description := p.ResolveDescription(parsed)
	tileImage := p.selectTileImage(parsed, savedFiles)

	page := model.Page{
		Filename:    filename,
		Title:       parsed.Title,
		Description: description,
		ContentHTML: contentHTML,
		Image:       tileImage,
	}
	if err := p.writePage(page); err != nil {
		return model.PublishResult{}, err
	}

	homepage, err := LoadHomepage(p.opts.IndexPath)
	if err != nil {
		return model.PublishResult{}, err
	}
	if err := homepage.UpsertTile(model.Tile{
		Filename:    filename,
		Title:       parsed.Title,
		Description: description,
		Image:       tileImage,
	}); err != nil {
		return model.PublishResult{}, err
	}
	homepage.PatchNavigation()
	if err := homepage.Save(); err != nil {
		return model.PublishResult{}, err
	}

	if p.logger != nil {
		p.logger.Info("page published", "filename", filename, "title", parsed.Title, "media", len(savedFiles))
	}
	return model.PublishResult{
		PageWritten:     filename,
		MediaSaved:      savedFiles,
		DescriptionUsed: description,
		TileImage:       tileImage,
	}, nil
}

func (p *Publisher) writePage(page model.Page) error {
	if err := os.MkdirAll(p.opts.PagesDir, 0o755); err != nil {
		return fmt.Errorf("create pages directory: %w", err)
	}

	target := filepath.Join(p.opts.PagesDir, page.Filename)
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create page file: %w", err)
	}
	defer file.Close()

	data := struct {
		Title       string
		Description string
		Image       string
		ContentHTML template.HTML
		CreatedAt   string
	}{
		Title:       page.Title,
		Description: page.Description,
		Image:       page.Image,
		ContentHTML: template.HTML(page.ContentHTML),
		CreatedAt:   time.Now().Format("January 2, 2006"),
	}
	if err := p.tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// ResolveDescription picks the tile description: the explicit [Description]
// tag, else the first reasonable sentence of the cleaned content, else the
// configured template with the title filled in.
func (p *Publisher) ResolveDescription(parsed model.ParsedEmail) string {
	if parsed.Description != "" {
		return parsed.Description
	}

	clean := p.cleanupRe.ReplaceAllString(parsed.Content, "")
	clean = p.tagStripRe.ReplaceAllString(clean, "")
	clean = p.linkRe.ReplaceAllString(clean, "")

	for _, sentence := range p.sentenceRe.Split(clean, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > 20 && len(sentence) < 160 {
			return sentence + "."
		}
	}

	return fmt.Sprintf(p.opts.DescriptionTemplate, parsed.Title)
}

// selectTileImage picks the tile image: the first image in original body
// order whose saved file can be resolved, else the first saved image file,
// else the configured default.
func (p *Publisher) selectTileImage(parsed model.ParsedEmail, savedFiles []string) string {
	prefix := titlePrefix(parsed.Title, p.opts.MaxTitlePrefixLen)

	for _, item := range parsed.OrderedContent {
		if item.Kind != model.KindMedia || item.AttachmentIndex >= len(parsed.Attachments) {
			continue
		}
		attachment := parsed.Attachments[item.AttachmentIndex]
		if !strings.HasPrefix(attachment.ContentType, "image/") {
			continue
		}

		sanitized := sanitizeFilename(path.Base(attachment.Filename))
		expected := prefix + "_" + sanitized
		for _, saved := range savedFiles {
			if path.Base(saved) == expected {
				return strings.TrimPrefix(saved, "../")
			}
		}
		for _, saved := range savedFiles {
			if strings.Contains(path.Base(saved), sanitized) {
				return strings.TrimPrefix(saved, "../")
			}
		}
		// First image in body order wins even when its file could not be
		// matched against what was written.
		return "images/" + expected
	}

	for _, saved := range savedFiles {
		if isImagePath(saved) {
			return strings.TrimPrefix(saved, "../")
		}
	}
	return p.opts.DefaultImage
}

func isImagePath(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg":
		return true
	}
	return false
}

// Delete removes a page artifact and its homepage tile. The identifier is a
// filename when it already ends in ".html", otherwise a title to slugify.
// Page and tile removal are reported separately: a missing tile after a
// successful page removal is a partial success, not a failure.
func (p *Publisher) Delete(identifier string) (filename string, tileRemoved bool, err error) {
	filename = identifier
	if !strings.HasSuffix(filename, ".html") {
		filename = p.Filename(identifier)
	}

	target := filepath.Join(p.opts.PagesDir, filename)
	if err := os.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filename, false, fmt.Errorf("%w: %s", ErrPageNotFound, filename)
		}
		return filename, false, fmt.Errorf("remove page: %w", err)
	}
	if p.logger != nil {
		p.logger.Info("page deleted", "filename", filename)
	}

	homepage, err := LoadHomepage(p.opts.IndexPath)
	if err != nil {
		return filename, false, nil
	}
	if err := homepage.RemoveTile(filename); err != nil {
		if p.logger != nil {
			p.logger.Warn("tile removal failed", "filename", filename, "err", err)
		}
		return filename, false, nil
	}
	if err := homepage.Save(); err != nil {
		if p.logger != nil {
			p.logger.Warn("homepage save failed after tile removal", "err", err)
		}
		return filename, false, nil
	}
	return filename, true, nil
}
