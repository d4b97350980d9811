// Package assemble stitches compiled timeline entries, anchors and template
// lines into a single note document ready for submission.
package assemble

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"tlnote/note"
	"tlnote/offsets"
	"tlnote/timeline"
)

// Template directives.
const (
	DirectiveJumpOP    = ".. jump_op"
	DirectiveSongDance = ".. song_dance"
	DirectiveBody      = ".. body"
)

// Default styling.
const (
	DefaultTitlePrefix    = "[AC|b#fff359|s18]"
	DefaultSubTitlePrefix = "[AC|B]"
	DefaultSongDanceTitle = "[AC|B|b#ffa0d0|s18]　　　本场歌舞快速导航　　　"
)

// DefaultTemplate lays out navigation followed by the body.
var DefaultTemplate = []string{DirectiveJumpOP, DirectiveSongDance, DirectiveBody}

// Style holds markup wrapped around generated titles.
type Style struct {
	TitlePrefix     string `yaml:"title_prefix"`
	TitlePostfix    string `yaml:"title_postfix"`
	SubTitlePrefix  string `yaml:"sub_title_prefix"`
	SubTitlePostfix string `yaml:"sub_title_postfix"`
	SongDanceTitle  string `yaml:"song_dance_title"`
}

// DefaultStyle returns styling used when nothing is configured.
func DefaultStyle() Style {
	return Style{
		TitlePrefix:    DefaultTitlePrefix,
		SubTitlePrefix: DefaultSubTitlePrefix,
		SongDanceTitle: DefaultSongDanceTitle,
	}
}

// Compiler is what assembler needs from markup compiler.
type Compiler interface {
	CompileString(ctx context.Context, s string) (*note.Document, string, error)
}

// Assembler builds final documents. A single Assemble call owns all
// intermediate state.
type Assembler struct {
	compiler Compiler
	style    Style
	hidePart bool
	now      func() time.Time
	rnd      *rand.Rand
	log      *zap.Logger
}

// Option customizes assembler.
type Option func(*Assembler)

// WithStyle sets title styling.
func WithStyle(s Style) Option {
	return func(a *Assembler) { a.style = s }
}

// WithHidePart makes anchors refer to parts without showing part selector.
func WithHidePart(hide bool) Option {
	return func(a *Assembler) { a.hidePart = hide }
}

// WithClock replaces clock used to stamp anchors.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithRand replaces source of padding filler.
func WithRand(rnd *rand.Rand) Option {
	return func(a *Assembler) { a.rnd = rnd }
}

// New creates assembler.
func New(compiler Compiler, log *zap.Logger, opts ...Option) *Assembler {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Assembler{
		compiler: compiler,
		style:    DefaultStyle(),
		now:      time.Now,
		log:      log.Named("assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		seed := uint64(a.now().UnixNano())
		a.rnd = rand.New(rand.NewPCG(seed, seed>>7))
	}
	return a
}

// Result of assembly.
type Result struct {
	Doc     *note.Document
	Entries []*Entry
	// Text is plain text timeline of every placed part.
	Text string
	// Placed is number of entry registrations over all placements.
	Placed int
}

// Assemble compiles every timeline entry, registers placements and lays out
// template. Any lookup failure aborts assembly, no partial document is
// returned.
func (a *Assembler) Assemble(ctx context.Context, template []string, master timeline.Timeline, res offsets.Result) (*Result, error) {
	entries, err := a.prepare(ctx, master)
	if err != nil {
		return nil, err
	}

	now := a.now()
	out := &Result{Entries: entries}
	for _, pl := range res.Placements {
		n := register(entries, pl, a.hidePart, now)
		a.log.Debug("Placement registered", zap.Int("part", pl.Part.Index), zap.String("variant", pl.VariantID), zap.Int("entries", n))
		out.Placed += n
	}

	doc := &note.Document{}
	for _, line := range template {
		var part *note.Document
		switch strings.TrimSpace(line) {
		case DirectiveJumpOP:
			part = a.jumps(res.Jumps, now)
		case DirectiveSongDance:
			part, err = a.songDance(ctx, entries)
		case DirectiveBody:
			part, err = a.body(ctx, entries)
		default:
			part, _, err = a.compiler.CompileString(ctx, line)
		}
		if err != nil {
			return nil, err
		}
		doc.Absorb(part)
	}

	a.log.Debug("Document assembled", zap.Int("length", doc.Len()))
	note.Pad(doc, a.rnd)
	out.Doc = doc
	out.Text = textTimeline(entries, res.Placements)
	return out, nil
}

func (a *Assembler) prepare(ctx context.Context, master timeline.Timeline) ([]*Entry, error) {
	entries := make([]*Entry, 0, master.Len())
	for _, src := range master.All() {
		markup := src.Tag
		if src.IsHeading() {
			markup = a.style.SubTitlePrefix + strings.TrimSpace(strings.TrimPrefix(src.Tag, timeline.HeadingPrefix)) + a.style.SubTitlePostfix
		}
		doc, abstract, err := a.compiler.CompileString(ctx, markup)
		if err != nil {
			return nil, fmt.Errorf("unable to compile entry %q: %w", src.String(), err)
		}
		entries = append(entries, &Entry{Source: src, Doc: doc, Abstract: abstract})
	}
	return entries, nil
}

func (a *Assembler) jumps(jumps []offsets.Jump, now time.Time) *note.Document {
	d := &note.Document{}
	if len(jumps) == 0 {
		return d
	}
	anchors := make([]note.Tag, 0, len(jumps))
	for _, j := range jumps {
		anchors = append(anchors, anchor(j.Placement, j.Seconds, j.Desc, a.hidePart, now))
	}
	for i := range anchors {
		if i > 0 {
			d.Append(note.Run{Text: " ", Attrs: &note.Attributes{Color: note.HintColor}}, 1)
		}
		d.Append(note.Run{Tag: &anchors[i]}, 1)
	}
	d.AppendNewLine("")
	return d
}

func (a *Assembler) songDance(ctx context.Context, entries []*Entry) (*note.Document, error) {
	d := &note.Document{}
	var selected []*Entry
	for _, e := range entries {
		if e.Source.IsSongOrDance() {
			selected = append(selected, e)
		}
	}
	if len(selected) == 0 {
		return d, nil
	}
	title, _, err := a.compiler.CompileString(ctx, a.style.SongDanceTitle)
	if err != nil {
		return nil, err
	}
	d.Absorb(title)
	for _, e := range selected {
		d.Absorb(e.Doc.Clone())
	}
	d.AppendNewLine("")
	return d, nil
}

func (a *Assembler) body(ctx context.Context, entries []*Entry) (*note.Document, error) {
	d := &note.Document{}
	var current []string
	for _, e := range entries {
		if len(e.Titles) == 0 {
			continue
		}
		if !sameTitles(current, e.Titles) {
			if current != nil {
				d.AppendNewLine("")
			}
			current = e.Titles
			title, _, err := a.compiler.CompileString(ctx, a.style.TitlePrefix+strings.Join(current, " / ")+a.style.TitlePostfix)
			if err != nil {
				return nil, err
			}
			d.Absorb(title)
		}
		if len(e.Anchors) > 0 && !e.Heading() {
			d.Absorb(badges(e.Anchors))
		}
		d.Absorb(e.Doc.Clone())
	}
	if current != nil {
		d.AppendNewLine("")
	}
	return d, nil
}

// textTimeline renders plain text timeline for every placed part, entries
// are written with markup stripped.
func textTimeline(entries []*Entry, placements []offsets.Placement) string {
	var sb strings.Builder
	for _, pl := range placements {
		clip := clipped(entries, pl)
		if len(clip) == 0 {
			continue
		}
		sb.WriteString(pl.Part.Title)
		sb.WriteByte('\n')
		for _, e := range clip {
			text := e.Source.Tag
			if len(e.Abstract) > 0 {
				text = e.Abstract
			}
			sb.WriteString(timeline.FormatSeconds(e.Source.Seconds - pl.Offset))
			sb.WriteByte(' ')
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
