// Package export renders tabular data for downloads.
package export

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// Table defines tabular export content. Footer, when set, is rendered after the rows.
type Table struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	Footer  map[string]string
}

// Renderer turns a table into bytes.
type Renderer interface {
	Render(Table) ([]byte, error)
	ContentType() string
}

// ForFormat returns the renderer for the given format name.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Amount formats an integer amount with thousands separators, e.g. -175000 -> "-175,000".
func Amount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
