// Package format turns loosely structured model output into display markup.
package format

import "strings"

// DefaultHeadingMarker starts a paragraph rendered as a bold heading.
const DefaultHeadingMarker = "Functional Logic:"

// paragraphSeparator splits model output whose newlines were flattened to
// spaces; a double space is where a paragraph break used to be.
const paragraphSeparator = "  "

// Formatter renders paragraphs as Markdown/HTML blocks.
type Formatter struct {
	HeadingMarker string
}

// New returns a Formatter using marker as the heading token. An empty marker
// selects DefaultHeadingMarker.
func New(marker string) *Formatter {
	if marker == "" {
		marker = DefaultHeadingMarker
	}
	return &Formatter{HeadingMarker: marker}
}

// Format never fails: text without markers becomes plain paragraphs.
func (f *Formatter) Format(content string) string {
	var b strings.Builder
	for _, p := range strings.Split(content, paragraphSeparator) {
		b.WriteString(f.Block(p))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Block renders a single trimmed paragraph.
func (f *Formatter) Block(paragraph string) string {
	p := strings.TrimSpace(paragraph)
	switch {
	case f.HeadingMarker != "" && strings.HasPrefix(p, f.HeadingMarker):
		return "**" + p + "**"
	case strings.HasPrefix(p, "-"):
		return "<ul><li>" + strings.TrimSpace(p[1:]) + "</li></ul>"
	case strings.HasPrefix(p, "~"):
		return "<h4>" + p + "</h4>"
	default:
		return p
	}
}

// Format renders content with the default heading marker.
func Format(content string) string {
	return New("").Format(content)
}
