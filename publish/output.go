package publish

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/yuin/goldmark"

	"tlnote/config"
)

// textFileName expands output template into file name under dir. Empty
// template disables text output.
func textFileName(tmpl, dir string, values Values) (string, error) {
	if len(strings.TrimSpace(tmpl)) == 0 {
		return "", nil
	}
	values.Slug = slug.Make(values.Title)
	name, err := expandTemplate(config.OutputTemplateFieldName, tmpl, values)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", fmt.Errorf("output template %q expanded to empty name", tmpl)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(dir, name), nil
}

// markdown renders plain text timeline as markdown: every part block
// becomes a section with a list of entries.
func markdown(title, text string) string {
	var sb strings.Builder
	sb.WriteString("# " + title + "\n")
	for block := range strings.SplitSeq(strings.TrimSpace(text), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 || len(lines[0]) == 0 {
			continue
		}
		sb.WriteString("\n## " + lines[0] + "\n\n")
		for _, l := range lines[1:] {
			sb.WriteString("- " + l + "\n")
		}
	}
	return sb.String()
}

// writeText stores text timeline and, when requested, its HTML preview next
// to it. Returns names of written files.
func writeText(name, title, text string, preview bool) ([]string, error) {
	if err := os.WriteFile(name, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("unable to write text timeline: %w", err)
	}
	written := []string{name}
	if !preview {
		return written, nil
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body>\n")
	if err := goldmark.Convert([]byte(markdown(title, text)), &buf); err != nil {
		return written, fmt.Errorf("unable to render preview: %w", err)
	}
	buf.WriteString("</body></html>\n")

	html := strings.TrimSuffix(name, filepath.Ext(name)) + ".html"
	if err := os.WriteFile(html, buf.Bytes(), 0644); err != nil {
		return written, fmt.Errorf("unable to write preview: %w", err)
	}
	return append(written, html), nil
}
