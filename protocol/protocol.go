// Package protocol classifies message subjects: the strict delete command
// grammar and the permissive page-creation gate. It decides, it never acts.
package protocol

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/mail2site/mail2site/model"
)

// Classifier holds the compiled subject grammars. Construct once at startup
// and share; it is read-only after New.
type Classifier struct {
	logger *slog.Logger

	deleteRe  *regexp.Regexp
	unsafeRes []*regexp.Regexp
}

// Subjects containing these are transactional noise, never pages.
var skipSubstrings = []string{
	"unsubscribe", "delivery failure", "out of office",
	"automatic reply", "bounce", "mailer-daemon",
	"no-reply", "noreply",
}

var replyPrefixes = []string{"re:", "fwd:", "fw:"}

var pageKeywords = []string{
	"create page", "new page", "portfolio page", "add page",
	"website update", "blog post", "project update",
}

func NewClassifier(logger *slog.Logger) *Classifier {
	unsafe := []string{`\[del\]`, `del:`, `delete:`, `\[delete\]`, `remove:`, `\[remove\]`, `rm `}
	compiled := make([]*regexp.Regexp, 0, len(unsafe))
	for _, pattern := range unsafe {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return &Classifier{
		logger:    logger,
		deleteRe:  regexp.MustCompile(`(?i)^\[DELETE\s+CONFIRM\]\s*(.+)$`),
		unsafeRes: compiled,
	}
}

// DetectDelete checks the subject against the confirm grammar. Only the
// exact `[DELETE CONFIRM] <identifier>` form authorizes deletion; any other
// delete-like phrasing is logged as unsafe and ignored. The false-negative
// bias is deliberate: casual text must never destroy a page.
func (c *Classifier) DetectDelete(subject string) *model.DeleteCommand {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil
	}

	if match := c.deleteRe.FindStringSubmatch(subject); match != nil {
		identifier := strings.TrimSpace(match[1])
		if identifier != "" {
			if c.logger != nil {
				c.logger.Info("delete command confirmed", "identifier", identifier, "subject", subject)
			}
			return &model.DeleteCommand{PageIdentifier: identifier}
		}
	}

	lower := strings.ToLower(subject)
	for _, re := range c.unsafeRes {
		if re.MatchString(lower) {
			if c.logger != nil {
				c.logger.Warn("unsafe delete pattern ignored", "subject", subject)
				c.logger.Warn("to delete pages, use: [DELETE CONFIRM] page_name")
			}
			break
		}
	}
	return nil
}

// IsUnsafeDeleteAttempt reports whether the subject looks like a delete
// request that failed the confirm grammar.
func (c *Classifier) IsUnsafeDeleteAttempt(subject string) bool {
	lower := strings.ToLower(strings.TrimSpace(subject))
	if lower == "" || c.deleteRe.MatchString(lower) {
		return false
	}
	for _, re := range c.unsafeRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsPageCreation decides whether a message should become a page. The gate
// is permissive by default: anything from the authorized sender with a
// meaningful subject passes unless it matches the transactional denylist or
// a reply/forward prefix.
func (c *Classifier) IsPageCreation(subject, body string) bool {
	if subject == "" {
		return false
	}

	subjectLower := strings.ToLower(strings.TrimSpace(subject))
	bodyLower := strings.ToLower(body)

	for _, skip := range skipSubstrings {
		if strings.Contains(subjectLower, skip) {
			return false
		}
	}
	for _, prefix := range replyPrefixes {
		if strings.HasPrefix(subjectLower, prefix) {
			return false
		}
	}

	// Markdown content is a strong signal.
	if strings.Contains(body, "#") {
		for _, line := range strings.Split(body, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				return true
			}
		}
	}

	for _, keyword := range pageKeywords {
		if strings.Contains(subjectLower, keyword) || strings.Contains(bodyLower, keyword) {
			return true
		}
	}

	return len(strings.TrimSpace(subject)) > 3
}
