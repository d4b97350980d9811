package note

import (
	"strconv"

	"tlnote/utils/debug"
)

// String returns readable tree of the document runs, used in debug reports.
func (d *Document) String() string {
	if d == nil {
		return "<nil Document>"
	}
	tw := debug.NewTreeWriter()
	tw.Line(0, "Document runs=%d length=%d", len(d.runs), d.length)
	for i, r := range d.runs {
		switch {
		case r.Tag != nil:
			tw.Fields(1, "["+strconv.Itoa(i)+"] tag",
				"cid", strconv.FormatInt(r.Tag.CID, 10),
				"index", strconv.Itoa(r.Tag.Index),
				"seconds", strconv.Itoa(r.Tag.Seconds),
				"desc", strconv.Quote(r.Tag.Desc))
		case r.Image != nil:
			tw.Fields(1, "["+strconv.Itoa(i)+"] image", "id", r.Image.ID, "width", strconv.Itoa(r.Image.Width))
		default:
			tw.TextBlock(1, "["+strconv.Itoa(i)+"] text", r.Text)
		}
		if a := r.Attrs; a != nil {
			tw.Fields(2, "attrs",
				"color", a.Color, "background", a.Background,
				"bold", flag(a.Bold), "italic", flag(a.Italic),
				"underline", flag(a.Underline), "strike", flag(a.Strike),
				"align", a.Align, "size", a.Size, "link", a.Link)
		}
	}
	return tw.String()
}

func flag(b bool) string {
	if b {
		return "true"
	}
	return ""
}
