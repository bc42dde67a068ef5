// Package debug formats human readable dumps for the debug report.
package debug

import (
	"fmt"
	"strconv"
	"strings"
)

const indent = "  "

// TreeWriter accumulates indented lines.
type TreeWriter struct {
	b strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{}
}

func (tw *TreeWriter) String() string {
	return tw.b.String()
}

func (tw *TreeWriter) Bytes() []byte {
	return []byte(tw.b.String())
}

// Line writes formatted line at requested depth.
func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.b.WriteString(strings.Repeat(indent, depth))
	fmt.Fprintf(&tw.b, format, args...)
	tw.b.WriteByte('\n')
}

// Field writes "label: value" line, string values are quoted so that
// whitespace and control characters stay visible.
func (tw *TreeWriter) Field(depth int, label string, value any) {
	tw.b.WriteString(strings.Repeat(indent, depth))
	tw.b.WriteString(label)
	tw.b.WriteString(": ")
	switch v := value.(type) {
	case string:
		if v != "" {
			v = strconv.Quote(v)
		}
		tw.b.WriteString(v)
	default:
		fmt.Fprint(&tw.b, v)
	}
	tw.b.WriteByte('\n')
}
