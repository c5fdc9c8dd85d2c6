package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("document.html").
		Funcs(template.FuncMap{"lower": strings.ToLower, "upper": strings.ToUpper}).
		ParseFS(templateFS, "templates/document.html"),
)

// Page is the view model handed to templates/document.html. Body is
// already sanitized by ContentToHTML.
type Page struct {
	AppName  string
	Title    string
	Type     string
	Body     template.HTML
	Author   string
	Modified string
	Size     string
	Grants   []Grant
}

// PageFor flattens a document into its page view.
func PageFor(appName string, doc Document) Page {
	return Page{
		AppName:  appName,
		Title:    doc.Title,
		Type:     doc.Type,
		Body:     ContentToHTML(doc),
		Author:   doc.Author,
		Modified: doc.Modified,
		Size:     doc.Size,
		Grants:   doc.Grants,
	}
}

func renderPage(p Page) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
