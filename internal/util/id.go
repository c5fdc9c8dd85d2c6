package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// DateLabel formats t the way item modification dates are stored.
func DateLabel(t time.Time) string {
	return t.Format("2006-01-02")
}

// KBLabel renders a byte count as a kilobyte size label.
func KBLabel(bytes int) string {
	return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
}
