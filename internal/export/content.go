package export

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var contentPolicy = bluemonday.UGCPolicy()

// ContentToHTML converts stored item content into the HTML body of the
// export. Spreadsheet content is already a table and is re-sanitized;
// plain text becomes paragraphs split on blank lines.
func ContentToHTML(doc Document) template.HTML {
	var b strings.Builder

	switch doc.Type {
	case "excel":
		b.WriteString(contentPolicy.Sanitize(doc.Content))
		return template.HTML(b.String())
	case "image":
		if isEmbeddable(doc.URL) {
			b.WriteString(`<p><img src="`)
			b.WriteString(html.EscapeString(doc.URL))
			b.WriteString(`" alt="`)
			b.WriteString(html.EscapeString(doc.Title))
			b.WriteString(`" style="max-width:100%"></p>`)
		}
	case "pdf":
		if isEmbeddable(doc.URL) && !strings.HasPrefix(doc.URL, "data:") {
			b.WriteString(`<p class="source">Source: <a href="`)
			b.WriteString(html.EscapeString(doc.URL))
			b.WriteString(`">`)
			b.WriteString(html.EscapeString(doc.URL))
			b.WriteString("</a></p>")
		}
	}

	for _, para := range splitParagraphs(doc.Content) {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isEmbeddable(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "data:")
}
