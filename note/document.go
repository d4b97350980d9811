// Package note builds rich text documents in the run based format accepted by
// video notes: ordered list of inserts (text or embed) with style attributes
// and a running length the platform uses for billing and limits.
package note

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// Attributes of a single run. Zero values are omitted from output.
type Attributes struct {
	Color      string `json:"color,omitempty"`
	Background string `json:"background,omitempty"`
	Bold       bool   `json:"bold,omitempty"`
	Italic     bool   `json:"italic,omitempty"`
	Underline  bool   `json:"underline,omitempty"`
	Strike     bool   `json:"strike,omitempty"`
	Align      string `json:"align,omitempty"`
	Size       string `json:"size,omitempty"`
	Link       string `json:"link,omitempty"`
}

// Tag is time anchor embed linking document position to a moment in a
// particular video part.
type Tag struct {
	CID      int64  `json:"cid"`
	OIDType  int    `json:"oid_type"`
	Status   int    `json:"status"`
	Index    int    `json:"index"`
	Seconds  int    `json:"seconds"`
	CIDCount int    `json:"cidCount"`
	Key      string `json:"key"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	EpID     int    `json:"epid"`
}

// Image is image embed.
type Image struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Width  int    `json:"width"`
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Run is single insert. Exactly one of Text, Tag, Image is meaningful: Tag
// and Image take precedence over Text.
type Run struct {
	Text  string
	Tag   *Tag
	Image *Image
	Attrs *Attributes
}

// IsNewLine reports whether run is line break.
func (r Run) IsNewLine() bool {
	return r.Tag == nil && r.Image == nil && r.Text == "\n"
}

func (r Run) clone() Run {
	if r.Tag != nil {
		t := *r.Tag
		r.Tag = &t
	}
	if r.Image != nil {
		i := *r.Image
		r.Image = &i
	}
	if r.Attrs != nil {
		a := *r.Attrs
		r.Attrs = &a
	}
	return r
}

type tagInsert struct {
	Tag *Tag `json:"tag"`
}

type imageInsert struct {
	Image *Image `json:"imageUpload"`
}

// MarshalJSON implements json.Marshaler.
func (r Run) MarshalJSON() ([]byte, error) {
	var insert any
	switch {
	case r.Tag != nil:
		insert = tagInsert{Tag: r.Tag}
	case r.Image != nil:
		insert = imageInsert{Image: r.Image}
	default:
		insert = r.Text
	}
	return marshal(struct {
		Attrs  *Attributes `json:"attributes,omitempty"`
		Insert any         `json:"insert"`
	}{Attrs: r.Attrs, Insert: insert})
}

// Document is an ordered list of runs with accumulated length. Document owns
// its runs: appending another document moves runs over and leaves the source
// empty, so fragments never share storage.
type Document struct {
	runs   []Run
	length int
}

// Len returns length of the document as reported to the platform.
func (d *Document) Len() int {
	return d.length
}

// Runs returns copy of document runs.
func (d *Document) Runs() []Run {
	out := make([]Run, len(d.runs))
	for i, r := range d.runs {
		out[i] = r.clone()
	}
	return out
}

// Empty reports whether document has no runs.
func (d *Document) Empty() bool {
	return len(d.runs) == 0
}

// Append adds run accounting for its length.
func (d *Document) Append(r Run, length int) {
	d.runs = append(d.runs, r)
	d.length += length
}

// AppendText adds styled text run, length is number of code points.
func (d *Document) AppendText(text string, attrs Attributes) {
	d.Append(Run{Text: text, Attrs: &attrs}, utf8.RuneCountInString(text))
}

// AppendNewLine closes current line with requested alignment (may be empty).
func (d *Document) AppendNewLine(align string) {
	r := Run{Text: "\n"}
	if len(align) > 0 {
		r.Attrs = &Attributes{Align: align}
	}
	d.Append(r, 1)
}

// AtLineStart reports whether next run would start a new line.
func (d *Document) AtLineStart() bool {
	if len(d.runs) == 0 {
		return true
	}
	last := d.runs[len(d.runs)-1]
	return last.IsNewLine() || last.Image != nil
}

// Absorb moves all runs of other to the end of d. Other is left empty.
func (d *Document) Absorb(other *Document) {
	if other == nil || other == d {
		return
	}
	d.runs = append(d.runs, other.runs...)
	d.length += other.length
	other.runs, other.length = nil, 0
}

// Clone returns deep copy of the document.
func (d *Document) Clone() *Document {
	return &Document{runs: d.Runs(), length: d.length}
}

// Join consumes all documents producing new one in order.
func Join(docs ...*Document) *Document {
	out := &Document{}
	for _, d := range docs {
		out.Absorb(d)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	runs := d.runs
	if runs == nil {
		runs = []Run{}
	}
	return marshal(runs)
}

// Content returns compact JSON representation suitable for submission.
func (d *Document) Content() (string, error) {
	b, err := d.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// marshal produces compact JSON without escaping HTML sensitive characters,
// inserted text is sent verbatim.
func marshal(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
