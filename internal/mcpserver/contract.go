package mcpserver

// IssueFormatContract describes the tracking issues Ansuz files in the
// destination repository, for LLM consumers that read or triage them.
const IssueFormatContract = `# Ansuz Tracking Issue Format

Ansuz files one tracking issue per source issue that has resolutions.

## Title

The tracking issue title is the source issue title, unmodified.

## Body

` + "```" + `markdown
A resolution was made for [csswg-drafts/#1234](https://github.com/w3c/csswg-drafts/issues/1234).

**Escaped source issue title**

* RESOLVED: The resolution text, Markdown-escaped.

[Discussion.](https://github.com/w3c/csswg-drafts/issues/1234#issuecomment-1)

----

To file a bug automatically for these resolutions, add the **bug** label to the issue.

If no bug is needed, the issue can be closed.
` + "```" + `

When several resolutions were made, the first line reads "Resolutions were
made" and the bullet list has one entry per resolution. Each discussion
comment gets its own bullet group and [Discussion.] link.

## Updates

Further resolutions on an already-tracked source issue are posted as a
comment on the tracking issue, in the same bullet format, starting
"A further resolution was made" (or "Further resolutions were made").

## Labels

Source labels selected by the destination repository's ` + "`.ansuz.yaml`" + `
(by color or name prefix) are mirrored onto the tracking issue with the
configured prefix, e.g. ` + "`[spec] css-grid-3`" + `.
`
