// Package resolution extracts working-group resolutions from issue comments
// and composes the tracking issues filed for them.
package resolution

import (
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// DefaultPrefix is the line prefix that marks a resolution in a comment.
const DefaultPrefix = "RESOLVED: "

// CommentResolutions holds the resolutions found in one comment.
type CommentResolutions struct {
	URL         string
	Resolutions []string
}

// Extract returns the resolution lines in body, in order of appearance.
// A line carries a resolution when it starts with prefix; the prefix itself
// is stripped from the returned text.
func Extract(body, prefix string) []string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, prefix) {
			out = append(out, line[len(prefix):])
		}
	}
	return out
}

// FromComments scans comments for resolutions and returns one entry per
// comment that carries at least one. Comment order is preserved.
func FromComments(comments []models.Comment, prefix string) []CommentResolutions {
	var out []CommentResolutions
	for _, c := range comments {
		rs := Extract(c.Body, prefix)
		if len(rs) == 0 {
			continue
		}
		out = append(out, CommentResolutions{URL: c.URL, Resolutions: rs})
	}
	return out
}

// Flatten collects every resolution line across comments, preserving order.
func Flatten(crs []CommentResolutions) []string {
	var out []string
	for _, cr := range crs {
		out = append(out, cr.Resolutions...)
	}
	return out
}
