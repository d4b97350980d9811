// Package debug renders internal structures as indented text trees for
// debug reports.
package debug

import (
	"fmt"
	"strconv"
	"strings"
)

const indent = "  "

type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{w: &strings.Builder{}}
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.w.WriteString(strings.Repeat(indent, depth))
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes label with quoted value, so invisible characters and
// line breaks stay visible.
func (tw *TreeWriter) TextBlock(depth int, label, value string) {
	tw.Line(depth, "%s: %s", label, quote(value))
}

// Fields writes label followed by key=value pairs skipping empty values.
func (tw *TreeWriter) Fields(depth int, label string, kv ...string) {
	var b strings.Builder
	b.WriteString(label)
	for i := 0; i+1 < len(kv); i += 2 {
		if len(kv[i+1]) == 0 {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	tw.Line(depth, "%s", b.String())
}

func quote(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
