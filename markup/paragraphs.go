package markup

import "strings"

var blockPrefixes = []string{
	"<h1>", "<h2>", "<h3>", "<h4>", "<h5>", "<h6>",
	"<img", "<ul>", "</ul>", "<li>", "<audio",
}

var multiLineTags = []string{"div", "video", "script", "style"}

// paragraphs groups remaining bare text lines into <p> blocks. Lines that
// are already block-level HTML pass through unwrapped; a tag that opens and
// closes across multiple lines is tracked by nesting depth so everything up
// to its real close passes through, nested markup included.
func (t *Transformer) paragraphs(content string) string {
	var out []string

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		var (
			textRun   []string
			blockTag  string
			blockDeep int
		)
		flush := func() {
			if len(textRun) > 0 {
				out = append(out, "<p>"+strings.Join(textRun, " ")+"</p>")
				textRun = nil
			}
		}

		for _, line := range strings.Split(para, "\n") {
			stripped := strings.TrimSpace(line)

			if blockTag != "" {
				out = append(out, line)
				blockDeep += tagDepthDelta(stripped, blockTag)
				if blockDeep <= 0 {
					blockTag = ""
				}
				continue
			}

			if tag, depth := opensMultiLineBlock(stripped); tag != "" {
				flush()
				out = append(out, line)
				if depth > 0 {
					blockTag, blockDeep = tag, depth
				}
				continue
			}

			if isBlockLine(stripped) {
				flush()
				out = append(out, line)
				continue
			}

			if stripped != "" {
				textRun = append(textRun, stripped)
			}
		}
		flush()
	}

	return strings.Join(out, "\n")
}

func isBlockLine(stripped string) bool {
	for _, prefix := range blockPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	for _, tag := range []string{"<h1>", "<h2>", "<h3>", "<h4>", "<h5>", "<h6>"} {
		if strings.Contains(stripped, tag) {
			return true
		}
	}
	return false
}

// opensMultiLineBlock reports whether the line starts a tracked block tag,
// and the nesting depth left open after this line (0 when it closes itself).
func opensMultiLineBlock(stripped string) (string, int) {
	for _, tag := range multiLineTags {
		if strings.HasPrefix(stripped, "<"+tag) {
			return tag, tagDepthDelta(stripped, tag)
		}
	}
	return "", 0
}

func tagDepthDelta(line, tag string) int {
	return strings.Count(line, "<"+tag) - strings.Count(line, "</"+tag)
}
