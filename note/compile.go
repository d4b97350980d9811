package note

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"tlnote/markup"
)

const (
	// LinkColor is used for all link runs.
	LinkColor = "#0b84ed"
	// HintColor is used for auxiliary text.
	HintColor = "#cccccc"

	defaultLinkText = "🔗打开链接"
	linkHintText    = " (手机端建议从评论回复中打开链接)"
	linkHintLength  = 18
	playGlyph       = "▶️"

	// VideoURLPrefix is prepended to video ids to form links.
	VideoURLPrefix = "https://www.bilibili.com/video/"
	// DefaultImageURL is format of image address for images referenced by
	// platform id.
	DefaultImageURL = "https://api.bilibili.com/x/note/image?image_id=%s"
	// DefaultImageWidth is display width of embedded images.
	DefaultImageWidth = 315

	imageStatusDone = "done"
)

// TitleResolver resolves video id to its title.
type TitleResolver interface {
	VideoTitle(ctx context.Context, id string) (string, error)
}

// Uploaded describes image stored on the platform.
type Uploaded struct {
	Location string
	Width    int
}

// ImageUploader uploads local image file.
type ImageUploader interface {
	UploadImage(ctx context.Context, path string) (Uploaded, error)
}

// Compiler turns token streams into documents. It keeps no state between
// calls, external lookups are invoked synchronously in token order.
type Compiler struct {
	titles     TitleResolver
	images     ImageUploader
	imageURL   string
	imageWidth int
	log        *zap.Logger
}

// Option customizes compiler.
type Option func(*Compiler)

// WithImageURL sets format (single %s verb) used to address images by id.
func WithImageURL(format string) Option {
	return func(c *Compiler) {
		if len(format) > 0 {
			c.imageURL = format
		}
	}
}

// WithImageWidth sets default display width of embedded images.
func WithImageWidth(width int) Option {
	return func(c *Compiler) {
		if width > 0 {
			c.imageWidth = width
		}
	}
}

// NewCompiler creates compiler using provided external lookups. Either of
// them may be nil, then documents referencing videos or local images fail
// to compile.
func NewCompiler(titles TitleResolver, images ImageUploader, log *zap.Logger, opts ...Option) *Compiler {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Compiler{
		titles:     titles,
		images:     images,
		imageURL:   DefaultImageURL,
		imageWidth: DefaultImageWidth,
		log:        log.Named("compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type style struct {
	color      string
	background string
	size       string
	bold       bool
	italic     bool
	underline  bool
	strike     bool
}

func (s style) attributes() Attributes {
	return Attributes{
		Color:      s.color,
		Background: s.background,
		Size:       s.size,
		Bold:       s.bold,
		Italic:     s.italic,
		Underline:  s.underline,
		Strike:     s.strike,
	}
}

// compilation keeps running state of a single Compile call.
type compilation struct {
	*Compiler

	doc      *Document
	style    style
	align    string
	linkName string
	hasLink  bool

	abstract     strings.Builder
	abstractDone bool
	lastImage    bool
}

// CompileString tokenizes and compiles single markup string.
func (c *Compiler) CompileString(ctx context.Context, s string) (*Document, string, error) {
	return c.Compile(ctx, markup.Tokenize(s))
}

// Compile builds document from tokens and returns it together with plain
// text abstract: concatenated text up to the first line break. Any lookup
// failure aborts compilation and no document is returned.
func (c *Compiler) Compile(ctx context.Context, tokens []markup.Token) (*Document, string, error) {
	st := &compilation{Compiler: c, doc: &Document{}}
	for _, t := range tokens {
		if err := st.token(ctx, t); err != nil {
			return nil, "", err
		}
	}
	if st.hasLink {
		st.doc.Append(Run{Text: linkHintText, Attrs: &Attributes{Color: HintColor}}, linkHintLength)
		st.lastImage = false
	}
	if !st.lastImage {
		st.doc.AppendNewLine(st.align)
	}
	return st.doc, st.abstract.String(), nil
}

func (st *compilation) token(ctx context.Context, t markup.Token) error {
	switch t.Kind {
	case markup.Text:
		if len(t.Payload) == 0 {
			return nil
		}
		st.doc.AppendText(t.Payload, st.style.attributes())
		if !st.abstractDone {
			st.abstract.WriteString(t.Payload)
		}
		st.lastImage = false
	case markup.NewLine:
		st.doc.AppendNewLine(st.align)
		st.abstractDone = true
		st.lastImage = false
	case markup.URL:
		st.link(t.Payload)
	case markup.URLDisplayName:
		st.linkName = t.Payload
	case markup.VideoIDLink:
		return st.video(ctx, t.Payload)
	case markup.ImageByID:
		st.image(Image{
			URL:    fmt.Sprintf(st.imageURL, t.Payload),
			Status: imageStatusDone,
			Width:  st.imageWidth,
			ID:     t.Payload,
		})
	case markup.ImageUpload:
		return st.upload(ctx, t.Payload)
	case markup.SetColor:
		st.style.color = t.Payload
	case markup.SetBackground:
		st.style.background = t.Payload
	case markup.SetFontSize:
		st.style.size = t.Payload + "px"
	case markup.SetBold:
		st.style.bold = true
	case markup.SetItalic:
		st.style.italic = true
	case markup.SetUnderline:
		st.style.underline = true
	case markup.SetStrike:
		st.style.strike = true
	case markup.AlignLeft:
		st.align = ""
	case markup.AlignCenter:
		st.align = "center"
	case markup.AlignRight:
		st.align = "right"
	case markup.Reset:
		st.style = style{}
		st.linkName = ""
	default:
		return fmt.Errorf("unexpected token %s", t)
	}
	return nil
}

func (st *compilation) link(addr string) {
	st.hasLink = true
	st.lastImage = false
	attrs := Attributes{Color: LinkColor, Link: addr}
	if len(st.linkName) == 0 {
		// default glyph is billed as a single character
		st.doc.Append(Run{Text: defaultLinkText, Attrs: &attrs}, 1)
		return
	}
	st.doc.AppendText(st.linkName, attrs)
	st.linkName = ""
}

func (st *compilation) video(ctx context.Context, id string) error {
	if st.titles == nil {
		return fmt.Errorf("unable to resolve video %s: no title resolver", id)
	}
	title, err := st.titles.VideoTitle(ctx, id)
	if err != nil {
		return fmt.Errorf("unable to resolve video %s: %w", id, err)
	}
	st.log.Debug("Resolved video title", zap.String("id", id), zap.String("title", title))
	st.hasLink = true
	st.lastImage = false
	st.doc.AppendText(playGlyph+title, Attributes{Color: LinkColor, Link: VideoURLPrefix + id})
	return nil
}

func (st *compilation) image(img Image) {
	if !st.doc.AtLineStart() {
		st.doc.AppendNewLine(st.align)
	}
	st.doc.Append(Run{Image: &img}, 1)
	st.lastImage = true
}

func (st *compilation) upload(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		st.log.Warn("Image file not found, dropping", zap.String("path", path))
		return nil
	}
	if st.images == nil {
		return fmt.Errorf("unable to upload image %s: no uploader", path)
	}
	up, err := st.images.UploadImage(ctx, path)
	if err != nil {
		return fmt.Errorf("unable to upload image %s: %w", path, err)
	}
	st.log.Debug("Uploaded image", zap.String("path", path), zap.String("location", up.Location))
	width := up.Width
	if width <= 0 || width > st.imageWidth {
		width = st.imageWidth
	}
	st.image(Image{
		URL:    up.Location,
		Status: imageStatusDone,
		Width:  width,
		ID:     imageID(up.Location),
	})
	return nil
}

// imageID extracts image id from platform location, falling back to the
// location itself.
func imageID(location string) string {
	if _, id, ok := strings.Cut(location, "image_id="); ok {
		if i := strings.IndexAny(id, "&#"); i >= 0 {
			id = id[:i]
		}
		return id
	}
	return location
}
