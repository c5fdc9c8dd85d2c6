package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var chromeBinaries = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

// Letter paper with 0.75in margins, in inches.
const (
	paperWidth  = 8.5
	paperHeight = 11.0
	pageMargin  = 0.75
)

func lookupChrome(explicit string) (string, error) {
	candidates := chromeBinaries
	if explicit != "" {
		candidates = []string{explicit}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chrome among %s", ErrPDFDependencyMissing, strings.Join(candidates, ", "))
}

// htmlDataURL inlines a page so chrome can load it without a file or server.
// Only RFC 3986 unreserved bytes pass through unescaped.
func htmlDataURL(html string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.WriteString("data:text/html;charset=utf-8,")
	for i := 0; i < len(html); i++ {
		c := html[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_' || c == '.' || c == '~'
}

func printPDF(ctx context.Context, html, chromePath string) ([]byte, error) {
	execPath, err := lookupChrome(chromePath)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var out []byte
	printAction := chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(paperWidth).
			WithPaperHeight(paperHeight).
			WithMarginTop(pageMargin).
			WithMarginBottom(pageMargin).
			WithMarginLeft(pageMargin).
			WithMarginRight(pageMargin).
			Do(ctx)
		out = data
		return err
	})
	if err := chromedp.Run(browserCtx, chromedp.Navigate(htmlDataURL(html)), chromedp.WaitReady("body"), printAction); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return out, nil
}

// fileBase turns an item name into a download-safe base name: the short
// extension goes, spaces become dashes, anything else non-alphanumeric is
// dropped, and the result is capped at 50 bytes.
func fileBase(name string) string {
	if dot := strings.LastIndexByte(name, '.'); dot > 0 && len(name)-dot <= 5 {
		name = name[:dot]
	}
	base := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r < 128 && (isUnreserved(byte(r)) && r != '.' && r != '~'):
			return r
		}
		return -1
	}, name)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		return "document"
	}
	return base
}
