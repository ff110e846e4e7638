package resolution

import (
	"fmt"
	"strings"
)

// Composer renders destination issue bodies and update comments for
// resolutions found in a source repository.
type Composer struct {
	// RepoName is the short name of the source repository (e.g. "csswg-drafts").
	RepoName string
	// RepoURL is the source repository URL (e.g. "https://github.com/w3c/csswg-drafts").
	RepoURL string
}

// IssueBody renders the body of a newly filed tracking issue.
func (c Composer) IssueBody(number int64, title string, crs []CommentResolutions) string {
	plural := "Resolutions were"
	if countResolutions(crs) == 1 {
		plural = "A resolution was"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s made for [%s/#%d](%s/issues/%d).\n\n", plural, c.RepoName, number, c.RepoURL, number)
	fmt.Fprintf(&b, "**%s**\n", EscapeMarkdown(title))
	writeResolutionSections(&b, crs)
	b.WriteString("\n----\n\n")
	b.WriteString("To file a bug automatically for these resolutions, add the **bug** label to the issue.\n\n")
	b.WriteString("If no bug is needed, the issue can be closed.")
	return b.String()
}

// UpdateBody renders the comment posted on an existing tracking issue when
// further resolutions appear on the source issue.
func (c Composer) UpdateBody(number int64, crs []CommentResolutions) string {
	plural := "Further resolutions were"
	if countResolutions(crs) == 1 {
		plural = "A further resolution was"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s made for [%s/#%d](%s/issues/%d).\n", plural, c.RepoName, number, c.RepoURL, number)
	writeResolutionSections(&b, crs)
	return strings.TrimRight(b.String(), "\n")
}

// writeResolutionSections writes each comment's resolutions as a bullet
// list followed by a link to the discussion comment.
func writeResolutionSections(b *strings.Builder, crs []CommentResolutions) {
	for _, cr := range crs {
		b.WriteString("\n")
		for _, r := range cr.Resolutions {
			fmt.Fprintf(b, "* RESOLVED: %s\n", EscapeMarkdown(r))
		}
		fmt.Fprintf(b, "\n[Discussion.](%s)\n", cr.URL)
	}
}

func countResolutions(crs []CommentResolutions) int {
	n := 0
	for _, cr := range crs {
		n += len(cr.Resolutions)
	}
	return n
}
