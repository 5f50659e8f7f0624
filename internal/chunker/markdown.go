package chunker

import (
	"regexp"
	"strings"
)

// parsedDocument is a markdown document split into heading-delimited sections.
type parsedDocument struct {
	// Title is the first H1 heading, empty when absent.
	Title string

	// LastUpdated is the document date in YYYY-MM-DD form, empty when
	// no date line was found.
	LastUpdated string

	// Sections holds the heading-delimited sections in source order.
	Sections []section
}

// section is one heading plus its body text.
type section struct {
	// Header is the heading line without the leading hashes.
	Header string

	// Level is the heading level (1-3). 0 for the preamble.
	Level int

	// Body is the text between this heading and the next.
	Body string
}

var (
	headingRe = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)

	// Matches date lines like "Last updated: 2025-03-10" or
	// "*Last Updated: 2025-03-10*".
	dateRe = regexp.MustCompile(`(?i)last\s+updated:?\s*\**\s*(\d{4}-\d{2}-\d{2})`)
)

// parseMarkdown splits content into sections at H1-H3 boundaries. Content
// before the first heading becomes a preamble section. A document with no
// headings at all is a single section.
func parseMarkdown(content string) parsedDocument {
	var doc parsedDocument

	if m := dateRe.FindStringSubmatch(content); m != nil {
		doc.LastUpdated = m[1]
	}

	lines := strings.Split(content, "\n")

	current := section{Header: "", Level: 0}
	var body strings.Builder
	started := false

	flush := func() {
		current.Body = strings.TrimSpace(body.String())
		if current.Header != "" || current.Body != "" {
			doc.Sections = append(doc.Sections, current)
		}
		body.Reset()
	}

	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}

		if m := headingRe.FindStringSubmatch(line); m != nil && !inFence {
			level := len(m[1])
			header := strings.TrimSpace(m[2])

			if level == 1 && doc.Title == "" {
				doc.Title = header
			}

			if started || body.Len() > 0 || current.Header != "" {
				flush()
			}
			current = section{Header: header, Level: level}
			started = true
			continue
		}

		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return doc
}

var (
	linkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasisRe  = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
	inlineCodRe = regexp.MustCompile("`([^`]*)`")
	multiNLRe   = regexp.MustCompile(`\n{3,}`)
)

// cleanRetrievalText strips markdown decoration that hurts keyword and
// embedding quality: links become their anchor text, emphasis and inline
// code markers are removed, runs of blank lines collapse.
func cleanRetrievalText(text string) string {
	text = linkRe.ReplaceAllString(text, "$1")
	text = emphasisRe.ReplaceAllString(text, "$2")
	text = inlineCodRe.ReplaceAllString(text, "$1")
	text = multiNLRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
