package assemble

import (
	"slices"
	"strconv"
	"time"

	"tlnote/note"
	"tlnote/offsets"
	"tlnote/timeline"
)

// Entry is timeline entry prepared for a single assembly: its compiled
// document plus anchors and part titles collected from every placement it
// falls into.
type Entry struct {
	Source   timeline.Entry
	Doc      *note.Document
	Abstract string
	Anchors  []note.Tag
	Titles   []string
}

// Heading reports whether entry opens a section and gets no anchor row.
func (e *Entry) Heading() bool {
	return e.Source.IsHeading()
}

// anchor builds time tag for a moment of a placed part.
func anchor(pl offsets.Placement, seconds int, desc string, hidePart bool, now time.Time) note.Tag {
	t := note.Tag{
		CID:      pl.Part.CID,
		OIDType:  0,
		Index:    pl.Part.Index,
		Seconds:  seconds,
		CIDCount: pl.Part.Count,
		Key:      strconv.FormatInt(now.UnixMilli(), 10),
		Desc:     desc,
	}
	if hidePart {
		t.OIDType, t.CIDCount = 2, 1
	}
	return t
}

// clipped returns entries falling into placed part, both part ends
// included, in timeline order.
func clipped(entries []*Entry, pl offsets.Placement) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if sec := e.Source.Seconds; sec >= pl.Offset && sec <= pl.Offset+pl.Part.Duration {
			out = append(out, e)
		}
	}
	return out
}

// register attaches placement to every entry falling into it. Entries
// suppressed for placement variant still record part title.
func register(entries []*Entry, pl offsets.Placement, hidePart bool, now time.Time) int {
	clip := clipped(entries, pl)
	for _, e := range clip {
		e.Titles = append(e.Titles, pl.Part.Title)
		if e.Source.Suppressed(pl.VariantID) {
			continue
		}
		e.Anchors = append(e.Anchors, anchor(pl, e.Source.Seconds-pl.Offset, pl.Marker, hidePart, now))
	}
	return len(clip)
}

// badges renders anchors as a row of compact jump badges.
func badges(anchors []note.Tag) *note.Document {
	d := &note.Document{}
	for i := range anchors {
		if i > 0 {
			d.Append(note.Run{Text: " ", Attrs: &note.Attributes{Color: note.HintColor}}, 1)
		}
		tag := anchors[i]
		d.Append(note.Run{Tag: &tag}, 1)
	}
	d.Append(note.Run{Text: " ⇙", Attrs: &note.Attributes{Color: note.HintColor}}, 1)
	d.AppendNewLine("")
	return d
}

// sameTitles compares part title groupings.
func sameTitles(a, b []string) bool {
	return slices.Equal(a, b)
}
