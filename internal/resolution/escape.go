package resolution

import (
	"regexp"
	"strings"
)

var (
	escapeMarkdownRe = regexp.MustCompile(`[#&()*+<>\[\]\\_` + "`" + `|-]`)
	markdownURLsRe   = regexp.MustCompile(`\((https:[^)]*)`)
)

// EscapeMarkdown neutralises Markdown syntax in s so that issue titles and
// resolution text render as written. Characters with HTML meaning are
// replaced by entities, the rest are backslash-escaped.
func EscapeMarkdown(s string) string {
	return escapeMarkdownRe.ReplaceAllStringFunc(s, func(m string) string {
		switch m {
		case `\`:
			return `\\`
		case "&":
			return "&amp;"
		case "<":
			return "&lt;"
		case ">":
			return "&gt;"
		case "|":
			return "&124;"
		default:
			return `\` + m
		}
	})
}

// ExtractURLs returns the https URLs referenced in Markdown links within s.
func ExtractURLs(s string) []string {
	matches := markdownURLsRe.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
