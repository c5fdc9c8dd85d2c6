package extract

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoLinks         = errors.New("the sheet does not contain any valid URLs or hyperlinks")
	ErrUnreadableSheet = errors.New("could not read the Excel file")
)

// Link is one import candidate found in a workbook.
type Link struct {
	ID         string
	FolderName string
	URL        string
	Cell       string
}

// ScanLinks walks the first sheet row by row and collects, per cell, an
// explicit hyperlink, a URL value, or a value naming a .pdf file. Each
// link is filed under the row's column A value.
func ScanLinks(r io.Reader) ([]Link, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrUnreadableSheet
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}

	var links []Link
	for r, row := range rows {
		folderName := fmt.Sprintf("Imported Row %d", r+1)
		if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
			folderName = row[0]
		}
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			target := linkTarget(f, sheet, cell, value)
			if target == "" {
				continue
			}
			links = append(links, Link{
				ID:         fmt.Sprintf("import-%d-%d", r, c),
				FolderName: folderName,
				URL:        target,
				Cell:       cell,
			})
		}
	}

	if len(links) == 0 {
		return nil, ErrNoLinks
	}
	return links, nil
}

func linkTarget(f *excelize.File, sheet, cell, value string) string {
	if ok, target, err := f.GetCellHyperLink(sheet, cell); err == nil && ok && IsURL(target) {
		return target
	}
	if value == "" {
		return ""
	}
	if IsURL(value) {
		return value
	}
	if strings.HasSuffix(strings.ToLower(value), ".pdf") {
		return value
	}
	return ""
}

// IsURL reports whether s is an absolute or protocol-relative URL with a
// dotted host or localhost.
func IsURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == "" && !strings.HasPrefix(s, "//") {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || strings.Contains(host, ".")
}

// FileNameFromURL returns the last path segment of a link, without query,
// or document.pdf when there is none.
func FileNameFromURL(link string) string {
	name := link
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "document.pdf"
	}
	return name
}
