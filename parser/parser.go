// Package parser turns raw email messages into an ordered content model.
// The walk preserves the exact interleaving of text and media parts so the
// rendered page mirrors the message 1:1.
package parser

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/mail2site/mail2site/model"
)

// Placeholder returns the token inserted in place of media item i during
// parsing. The markup transformer substitutes it with rendered markup.
func Placeholder(i int) string {
	return fmt.Sprintf("__MEDIA_PLACEHOLDER_%d__", i)
}

// PlaceholderPattern matches placeholder tokens, including the legacy
// spelling without the double underscores.
var PlaceholderPattern = regexp.MustCompile(`(?i)(?:__)?MEDIA_?PLACEHOLDER_?(\d+)(?:__)?`)

// Parser extracts ParsedEmail values from raw messages. It never fails: a
// message that cannot be read as MIME degrades to a line-oriented heuristic
// parse.
type Parser struct {
	logger *slog.Logger

	descriptionRe *regexp.Regexp
	brRe          *regexp.Regexp
	pCloseRe      *regexp.Regexp
	tagRe         *regexp.Regexp
	headerLineRe  *regexp.Regexp
}

func New(logger *slog.Logger) *Parser {
	return &Parser{
		logger:        logger,
		descriptionRe: regexp.MustCompile(`(?is)\[description\](.*?)\[/description\]`),
		brRe:          regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`),
		pCloseRe:      regexp.MustCompile(`(?i)</\s*p\s*>`),
		tagRe:         regexp.MustCompile(`<[^>]+>`),
		headerLineRe:  regexp.MustCompile(`(?i)^(from|to|cc|bcc|date|subject|content-type|mime-version|message-id|received|return-path|reply-to):`),
	}
}

// Parse is a total function: whatever the input, it returns a usable
// title/content pair.
func (p *Parser) Parse(raw []byte) model.ParsedEmail {
	parsed, err := p.parseMIME(raw)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("mime parse failed, using heuristic fallback", "err", err)
		}
		return p.parseHeuristic(raw)
	}
	return parsed
}

func (p *Parser) parseMIME(raw []byte) (model.ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return model.ParsedEmail{}, fmt.Errorf("create mail reader: %w", err)
	}
	defer mr.Close()

	title, err := mr.Header.Subject()
	if err != nil || strings.TrimSpace(title) == "" {
		title = "New Page"
	}

	var (
		ordered     []model.ContentItem
		attachments []model.Attachment
	)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever was walked so far; a broken trailing part
			// should not discard the leading ones.
			break
		}

		contentType, filename, disposition := partMeta(part)

		switch classifyPart(contentType) {
		case TextPart:
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			text := string(body)
			if contentType == "text/html" {
				text = p.htmlToText(text)
			}
			text = strings.TrimSpace(text)
			if text != "" {
				ordered = append(ordered, model.ContentItem{Kind: model.KindText, Text: text})
			}

		case MediaPart:
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil || len(data) == 0 {
				continue
			}
			if filename == "" {
				filename = fmt.Sprintf("inline_media_%d%s", len(attachments)+1, extensionFor(contentType))
			}
			attachments = append(attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
				Disposition: disposition,
			})
			ordered = append(ordered, model.ContentItem{
				Kind:            model.KindMedia,
				Filename:        filename,
				AttachmentIndex: len(attachments) - 1,
			})

		case OtherPart:
			// Containers and non-content parts carry nothing for the page.
		}
	}

	content := p.assemble(ordered)
	description, content := p.extractDescription(content)

	return model.ParsedEmail{
		Title:          title,
		Content:        content,
		OrderedContent: ordered,
		Attachments:    attachments,
		Description:    description,
	}, nil
}

func partMeta(part *mail.Part) (contentType, filename string, disposition model.Disposition) {
	disposition = model.DispositionInline
	switch h := part.Header.(type) {
	case *mail.InlineHeader:
		t, params, err := h.ContentType()
		if err == nil {
			contentType = t
			filename = params["name"]
		}
	case *mail.AttachmentHeader:
		disposition = model.DispositionAttachment
		if t, _, err := h.ContentType(); err == nil {
			contentType = t
		}
		if name, err := h.Filename(); err == nil {
			filename = name
		}
	}
	return contentType, filename, disposition
}

// assemble joins the ordered items into the content string, substituting
// each media item with its placeholder token.
func (p *Parser) assemble(ordered []model.ContentItem) string {
	parts := make([]string, 0, len(ordered))
	for _, item := range ordered {
		switch item.Kind {
		case model.KindText:
			parts = append(parts, item.Text)
		case model.KindMedia:
			parts = append(parts, Placeholder(item.AttachmentIndex))
		}
	}
	return strings.Join(parts, "\n\n")
}

// extractDescription pulls the [Description] tag out of the content,
// returning the cleaned description and the content with the tag removed.
func (p *Parser) extractDescription(content string) (string, string) {
	match := p.descriptionRe.FindStringSubmatch(content)
	if match == nil {
		return "", content
	}
	description := strings.TrimSpace(match[1])
	description = strings.TrimSpace(PlaceholderPattern.ReplaceAllString(description, ""))
	content = strings.TrimSpace(p.descriptionRe.ReplaceAllString(content, ""))
	return description, content
}

// htmlToText strips markup from an HTML body while keeping the line breaks
// that <br> and </p> imply, so description extraction and the markdown
// subset still see paragraph boundaries.
func (p *Parser) htmlToText(content string) string {
	text := p.brRe.ReplaceAllString(content, "\n")
	text = p.pCloseRe.ReplaceAllString(text, "\n")
	text = p.tagRe.ReplaceAllString(text, "")
	return html.UnescapeString(text)
}

// parseHeuristic handles input that is not a parseable message: the first
// non-empty line that is neither a header nor a markdown heading becomes the
// title, everything after it the content.
func (p *Parser) parseHeuristic(raw []byte) model.ParsedEmail {
	var (
		title        string
		contentLines []string
	)

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "subject:") {
			title = strings.TrimSpace(line[len("subject:"):])
			continue
		}
		if title == "" && !strings.HasPrefix(line, "#") && !p.headerLineRe.MatchString(line) {
			title = line
			continue
		}
		contentLines = append(contentLines, line)
	}

	if title == "" {
		title = "New Page"
	}
	content := strings.TrimSpace(strings.Join(contentLines, "\n"))

	ordered := []model.ContentItem{}
	if content != "" {
		ordered = append(ordered, model.ContentItem{Kind: model.KindText, Text: content})
	}

	return model.ParsedEmail{
		Title:          title,
		Content:        content,
		OrderedContent: ordered,
	}
}
