// Package extract turns uploaded files into document content.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/xuri/excelize/v2"

	"docuflex/internal/store"
	"docuflex/internal/util"
)

const (
	docFailure   = "Could not extract text from document."
	excelFailure = "Could not parse Excel file."
)

var errNoDocumentBody = errors.New("docx has no word/document.xml")

// Extracted is the content derived from one uploaded file.
type Extracted struct {
	Type      store.ItemType
	Content   string
	SizeLabel string
	MimeType  string
	// Inline is set when the raw payload should be kept as the item URL.
	Inline bool
}

type Extractor struct {
	policy *bluemonday.Policy
}

func New() *Extractor {
	return &Extractor{policy: bluemonday.UGCPolicy()}
}

// Extract never fails: unreadable documents and workbooks degrade to a
// placeholder content string.
func (e *Extractor) Extract(name, mimeType string, data []byte) Extracted {
	if mimeType == "" {
		mimeType = DetectMimeType(name, data)
	}
	lower := strings.ToLower(name)
	isDoc := strings.HasSuffix(lower, ".doc") || strings.HasSuffix(lower, ".docx")
	isExcel := strings.HasSuffix(lower, ".xls") || strings.HasSuffix(lower, ".xlsx")

	out := Extracted{
		Type:      typeForMime(mimeType),
		Content:   "Uploaded file: " + name,
		SizeLabel: util.KBLabel(len(data)),
		MimeType:  mimeType,
		Inline:    !isDoc && !isExcel,
	}

	switch {
	case isDoc:
		out.Type = store.TypeDoc
		text, err := DocxText(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			out.Content = docFailure
		} else {
			out.Content = text
		}
	case isExcel:
		out.Type = store.TypeExcel
		table, err := SheetHTML(bytes.NewReader(data))
		if err != nil {
			out.Content = excelFailure
		} else {
			out.Content = e.policy.Sanitize(table)
		}
	}
	return out
}

func typeForMime(mimeType string) store.ItemType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return store.TypeImage
	case mimeType == "application/pdf":
		return store.TypePDF
	default:
		return store.TypeDoc
	}
}

// DetectMimeType guesses a MIME type from the file extension, then from
// the content.
func DetectMimeType(name string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return http.DetectContentType(data)
}

// DocxText returns the raw paragraph text of a .docx document, paragraphs
// separated by blank lines.
func DocxText(r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document body: %w", err)
		}
		defer rc.Close()
		return documentText(rc)
	}
	return "", errNoDocumentBody
}

func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n")), nil
}

// SheetHTML renders the first sheet of a workbook as an HTML table.
func SheetHTML(r io.Reader) (string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("read rows: %w", err)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	var b strings.Builder
	b.WriteString("<table><tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for c := 0; c < width; c++ {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String(), nil
}
