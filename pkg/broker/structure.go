package broker

import (
	"fmt"
	"strings"

	"github.com/harun/pagebroker/pkg/page"
)

// maxStructureSection caps each section of the page structure report so it
// stays usable as prompt context.
const maxStructureSection = 2000

// PageStructure serializes the current page for prompt context: URL, title,
// and size-capped HTML and visible-text sections.
func PageStructure(h *page.Handle) (string, error) {
	url, err := h.URL()
	if err != nil {
		return "", err
	}
	title, err := h.Title()
	if err != nil {
		return "", err
	}

	html, err := h.HTML()
	if err != nil {
		html = fmt.Sprintf("(unavailable: %v)", err)
	}
	text, err := h.Text()
	if err != nil {
		text = fmt.Sprintf("(unavailable: %v)", err)
	}

	var b strings.Builder
	b.WriteString("=== Current page ===\n")
	fmt.Fprintf(&b, "URL: %s\n", url)
	fmt.Fprintf(&b, "Title: %s\n\n", title)
	b.WriteString("HTML fragment:\n")
	b.WriteString(truncate(html, maxStructureSection))
	b.WriteString("\n\nVisible text:\n")
	b.WriteString(truncate(text, maxStructureSection))

	return b.String(), nil
}

// truncate caps s at n bytes with a marker.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
