// Package timeline keeps the master list of timestamped remarks and provides
// value operations over it. Timelines are never modified in place, every
// operation returns a new Timeline.
package timeline

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Glyphs marking song and dance entries.
const (
	SongGlyph  = "🎤"
	DanceGlyph = "💃"
)

// HeadingPrefix marks section heading entries.
const HeadingPrefix = "##"

// Entry is a single annotated remark on the master timeline.
type Entry struct {
	Seconds int
	Tag     string
	// Mask lists ids of variants this entry must not produce anchors for.
	Mask []string
	// ID is identity of the entry, when empty identity is derived from
	// seconds and tag.
	ID string
}

// Key returns identity of the entry.
func (e Entry) Key() string {
	if len(e.ID) > 0 {
		return e.ID
	}
	return strconv.Itoa(e.Seconds) + "_" + e.Tag
}

// Suppressed reports whether entry is masked for variant with given id.
func (e Entry) Suppressed(variant string) bool {
	return slices.Contains(e.Mask, variant)
}

// IsHeading reports whether entry is a section heading.
func (e Entry) IsHeading() bool {
	return strings.HasPrefix(e.Tag, HeadingPrefix)
}

// IsSongOrDance reports whether entry marks a performance.
func (e Entry) IsSongOrDance() bool {
	return HasAnyPrefix(e.Tag, SongGlyph, DanceGlyph)
}

// Shift returns a copy of the entry moved by delta seconds. Identity of the
// entry survives the move so shifted entries could be traced back to the
// entry they were produced from.
func (e Entry) Shift(delta int) Entry {
	out := e
	out.ID = e.Key()
	out.Seconds += delta
	out.Mask = slices.Clone(e.Mask)
	return out
}

// String formats entry as "h:mm:ss tag".
func (e Entry) String() string {
	return FormatSeconds(e.Seconds) + " " + e.Tag
}

// FormatSeconds formats seconds as "h:mm:ss", negative values are kept signed.
func FormatSeconds(sec int) string {
	sign := ""
	if sec < 0 {
		sign, sec = "-", -sec
	}
	m, s := sec/60, sec%60
	h, m := m/60, m%60
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}

// Timeline is an ordered collection of entries sorted by seconds. Entries
// with equal seconds keep their relative order.
type Timeline struct {
	items []Entry
}

// New creates timeline from entries. Entries slice is copied.
func New(items []Entry) Timeline {
	t := Timeline{items: slices.Clone(items)}
	sort.SliceStable(t.items, func(i, j int) bool {
		return t.items[i].Seconds < t.items[j].Seconds
	})
	return t
}

// Len returns number of entries.
func (t Timeline) Len() int {
	return len(t.items)
}

// Entries returns a copy of timeline entries in order.
func (t Timeline) Entries() []Entry {
	return slices.Clone(t.items)
}

// All iterates over entries in order.
func (t Timeline) All() func(yield func(int, Entry) bool) {
	return func(yield func(int, Entry) bool) {
		for i, e := range t.items {
			if !yield(i, e) {
				return
			}
		}
	}
}

// Shift returns timeline with all entries moved by delta seconds.
func (t Timeline) Shift(delta int) Timeline {
	out := make([]Entry, 0, len(t.items))
	for _, e := range t.items {
		out = append(out, e.Shift(delta))
	}
	return Timeline{items: out}
}

// Clip returns entries within [start, start+length] (both ends inclusive)
// re-based to start. An entry exactly on the boundary between two adjacent
// clips belongs to both of them.
func (t Timeline) Clip(start, length int) Timeline {
	out := make([]Entry, 0)
	for _, e := range t.items {
		if e.Seconds >= start && e.Seconds <= start+length {
			out = append(out, e.Shift(-start))
		}
	}
	return Timeline{items: out}
}

// Filter returns subsequence of entries satisfying predicate.
func (t Timeline) Filter(pred func(Entry) bool) Timeline {
	out := make([]Entry, 0)
	for _, e := range t.items {
		if pred(e) {
			out = append(out, e)
		}
	}
	return Timeline{items: out}
}

// FilterByPrefix returns entries which tag starts with any of the prefixes.
func (t Timeline) FilterByPrefix(prefixes ...string) Timeline {
	return t.Filter(func(e Entry) bool {
		return HasAnyPrefix(e.Tag, prefixes...)
	})
}

// SongAndDance returns song and dance entries only.
func (t Timeline) SongAndDance() Timeline {
	return t.FilterByPrefix(SongGlyph, DanceGlyph)
}

// Headings returns section heading entries only.
func (t Timeline) Headings() Timeline {
	return t.FilterByPrefix(HeadingPrefix)
}

// Concat returns timeline containing entries of both timelines.
func (t Timeline) Concat(other Timeline) Timeline {
	items := make([]Entry, 0, len(t.items)+len(other.items))
	items = append(items, t.items...)
	items = append(items, other.items...)
	return New(items)
}

// String renders timeline one entry per line.
func (t Timeline) String() string {
	lines := make([]string, 0, len(t.items))
	for _, e := range t.items {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

// HasAnyPrefix reports whether s starts with any of the prefixes.
func HasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
