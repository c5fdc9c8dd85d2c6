package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// convertDOCX pipes the rendered page through pandoc and returns the
// document bytes from stdout.
func convertDOCX(ctx context.Context, html, title, pandocPath string) ([]byte, error) {
	if pandocPath == "" {
		pandocPath = "pandoc"
	}
	bin, err := exec.LookPath(pandocPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrDOCXDependencyMissing, pandocPath)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--from=html", "--to=docx", "--standalone", "--metadata", "title="+title, "--output=-")
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pandoc: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("pandoc: %w", err)
	}
	return stdout.Bytes(), nil
}
