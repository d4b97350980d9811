// Package publish runs a single publish pass: video metadata is fetched,
// master timeline is placed onto video parts, note is assembled and
// submitted.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tlnote/assemble"
	"tlnote/bilibili"
	"tlnote/config"
	"tlnote/markup"
	"tlnote/note"
	"tlnote/offsets"
	"tlnote/timeline"
)

// Outcome describes finished pass.
type Outcome struct {
	PassID string
	Video  *bilibili.Video
	// Skipped is set when video parts did not change since previous pass.
	Skipped    bool
	Resolution offsets.Result
	Result     *assemble.Result
	Summary    string
	// Content is JSON encoded document.
	Content string
	NoteID  string
	// Submitted is false for dry runs.
	Submitted bool
}

// Pass holds everything single publish pass needs.
type Pass struct {
	cfg      *config.Config
	platform Platform
	rpt      *config.Report
	dry      bool
	force    bool
	now      func() time.Time
	rnd      *rand.Rand
	log      *zap.Logger
}

// Option customizes pass.
type Option func(*Pass)

// WithReport collects intermediate dumps into debug report.
func WithReport(rpt *config.Report) Option {
	return func(p *Pass) { p.rpt = rpt }
}

// WithDryRun assembles document without touching the note.
func WithDryRun(dry bool) Option {
	return func(p *Pass) { p.dry = dry }
}

// WithForce disables skipping unchanged videos.
func WithForce(force bool) Option {
	return func(p *Pass) { p.force = force }
}

// WithClock replaces clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pass) { p.now = now }
}

// WithRand replaces source of padding filler.
func WithRand(rnd *rand.Rand) Option {
	return func(p *Pass) { p.rnd = rnd }
}

// New creates publish pass.
func New(cfg *config.Config, platform Platform, log *zap.Logger, opts ...Option) *Pass {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pass{
		cfg:      cfg,
		platform: platform,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the pass for master timeline. Previous memo (may be nil) is
// used to skip videos whose parts did not change.
func (p *Pass) Execute(ctx context.Context, bvid string, master timeline.Timeline, prev *Memo) (*Outcome, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("unable to generate pass id: %w", err)
	}
	out := &Outcome{PassID: id.String()}
	log := p.log.With(zap.String("pass", out.PassID))

	if out.Video, err = p.platform.Video(ctx, bvid); err != nil {
		return nil, fmt.Errorf("unable to get video information: %w", err)
	}
	log.Info("Video found", zap.String("bvid", out.Video.BVID), zap.String("title", out.Video.Title), zap.Int("parts", len(out.Video.Parts)))

	if !p.force && prev.Unchanged(out.Video) {
		log.Info("Video parts did not change since previous pass, nothing to do", zap.String("previous", prev.PassID))
		out.Skipped = true
		return out, nil
	}

	variants, legacy := p.cfg.Publish.EffectiveVariants()
	if legacy {
		log.Warn("Using legacy offsets, consider moving them to variants")
	}
	if len(variants) == 0 {
		return nil, errors.New("no variants configured, unable to place timeline")
	}
	out.Resolution = offsets.NewResolver(variants, p.cfg.Publish.IgnoreThreshold, log).Resolve(out.Video.Parts)
	if len(out.Resolution.Placements) == 0 {
		log.Warn("No parts were placed, note will only contain template text")
	}

	compiler := note.NewCompiler(p.platform,
		&uploader{platform: p.platform, cfg: p.cfg.Images.Config, dry: p.dry, log: log.Named("images")},
		log,
		note.WithImageURL(p.cfg.Images.URLTemplate),
		note.WithImageWidth(p.cfg.Images.DefaultWidth))

	opts := []assemble.Option{
		assemble.WithStyle(p.cfg.Publish.Style),
		assemble.WithHidePart(p.cfg.Publish.HidePart),
		assemble.WithClock(p.now),
	}
	if p.rnd != nil {
		opts = append(opts, assemble.WithRand(p.rnd))
	}
	template := p.cfg.Publish.EffectiveTemplate()
	if out.Result, err = assemble.New(compiler, log, opts...).Assemble(ctx, template, master, out.Resolution); err != nil {
		return nil, fmt.Errorf("unable to assemble note: %w", err)
	}
	if out.Content, err = out.Result.Doc.Content(); err != nil {
		return nil, fmt.Errorf("unable to encode note: %w", err)
	}

	values := Values{
		Title:   out.Video.Title,
		BVID:    out.Video.BVID,
		PassID:  out.PassID,
		Date:    p.now().Format("2006-01-02"),
		Parts:   len(out.Resolution.Placements),
		Entries: master.Len(),
	}
	cover, err := expandTemplate(config.CoverTemplateFieldName, p.cfg.Publish.Cover, values)
	if err != nil {
		return nil, err
	}
	out.Summary = trimSummary(cover, p.cfg.Publish.SummaryMax, newSplitter(log))

	p.report(out, master, template)

	log.Info("Note assembled",
		zap.Int("length", out.Result.Doc.Len()),
		zap.Int("entries", len(out.Result.Entries)),
		zap.Int("anchors", out.Result.Placed),
		zap.Int("jumps", len(out.Resolution.Jumps)))

	if p.dry {
		return out, nil
	}

	if out.NoteID, err = p.noteID(ctx, out.Video, prev); err != nil {
		return nil, err
	}
	stored, err := p.platform.SubmitNote(ctx, bilibili.Submission{
		AID:         out.Video.AID,
		NoteID:      out.NoteID,
		Title:       out.Video.Title,
		Summary:     out.Summary,
		Content:     out.Content,
		Length:      out.Result.Doc.Len(),
		Hash:        strconv.FormatInt(p.now().UnixMilli(), 10),
		Publish:     p.cfg.Publish.Publish,
		AutoComment: p.cfg.Publish.AutoComment,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to submit note: %w", err)
	}
	out.NoteID, out.Submitted = stored, true
	log.Info("Note submitted", zap.String("note", out.NoteID), zap.Bool("publish", p.cfg.Publish.Publish))
	return out, nil
}

// noteID finds existing note for the video or creates a new one.
func (p *Pass) noteID(ctx context.Context, v *bilibili.Video, prev *Memo) (string, error) {
	ids, err := p.platform.NoteIDs(ctx, v.AID)
	if err != nil {
		return "", fmt.Errorf("unable to list notes: %w", err)
	}
	if len(ids) > 0 {
		// prefer the one we wrote last time
		if prev != nil && prev.BVID == v.BVID {
			for _, id := range ids {
				if id == prev.NoteID {
					return id, nil
				}
			}
		}
		return ids[0], nil
	}
	id, err := p.platform.CreateNote(ctx, v.AID, v.Title)
	if err != nil {
		return "", fmt.Errorf("unable to create note: %w", err)
	}
	p.log.Debug("Note created", zap.String("note", id))
	return id, nil
}

func (p *Pass) report(out *Outcome, master timeline.Timeline, template []string) {
	if p.rpt == nil {
		return
	}
	prefix := "pass-" + out.PassID + "/"

	for i, line := range template {
		p.rpt.StoreData(fmt.Sprintf("%stemplate/%03d.txt", prefix, i), []byte(markup.Dump(line, markup.Tokenize(line))))
	}
	for i, e := range master.All() {
		p.rpt.StoreData(fmt.Sprintf("%stokens/%04d.txt", prefix, i), []byte(markup.Dump(e.Tag, markup.Tokenize(e.Tag))))
	}
	p.rpt.StoreData(prefix+"document.txt", []byte(out.Result.Doc.String()))
	p.rpt.StoreData(prefix+"document.json", []byte(out.Content))
	p.rpt.StoreData(prefix+"timeline.txt", []byte(out.Result.Text))
	if data, err := json.MarshalIndent(out.Resolution, "", "  "); err == nil {
		p.rpt.StoreData(prefix+"placements.json", data)
	}
}
