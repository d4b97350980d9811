package timeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tlnote/common"
)

// HighlightMarker is legacy suffix marking highlighted entries.
const HighlightMarker = "*"

// ErrUnknownFormat is returned when timeline format cannot be read or written.
var ErrUnknownFormat = errors.New("unsupported timeline format")

// LineError describes a source line which was skipped.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%q): %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Loader reads timelines from supported serialization formats. Malformed
// lines never stop loading, they are reported and collected.
type Loader struct {
	// Encoding forces source character set for text based formats, when nil
	// character set is detected.
	Encoding encoding.Encoding

	log     *zap.Logger
	skipped error
}

// NewLoader creates loader.
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{log: log.Named("timeline")}
}

// Skipped returns combined diagnostics for all lines skipped so far.
func (l *Loader) Skipped() error {
	return l.skipped
}

func (l *Loader) skip(line int, text string, err error) {
	l.log.Warn("Skipping malformed timeline line", zap.Int("line", line), zap.String("text", text), zap.Error(err))
	l.skipped = multierr.Append(l.skipped, &LineError{Line: line, Text: text, Err: err})
}

// LoadFile reads timeline from file in requested format.
func (l *Loader) LoadFile(path string, format common.TimelineFmt) (Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Timeline{}, fmt.Errorf("unable to open timeline: %w", err)
	}
	defer f.Close()

	l.log.Debug("Loading timeline", zap.String("path", path), zap.Stringer("format", format))
	return l.Load(f, format)
}

// Load reads timeline in requested format.
func (l *Loader) Load(r io.Reader, format common.TimelineFmt) (Timeline, error) {
	switch format {
	case common.TimelineFmtCsv:
		return l.ReadCSV(r)
	case common.TimelineFmtTxt:
		return l.ReadText(r)
	case common.TimelineFmtPbf:
		return l.ReadPBF(r)
	case common.TimelineFmtXml:
		return l.ReadRecorderXML(r)
	default:
		return Timeline{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// decode wraps reader so it produces UTF-8 without BOM.
func (l *Loader) decode(r io.Reader) (io.Reader, error) {
	if l.Encoding != nil {
		return transform.NewReader(r, l.Encoding.NewDecoder()), nil
	}
	br := bufio.NewReader(r)
	peek, err := br.Peek(1024)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	enc, name, _ := charset.DetermineEncoding(peek, "text/plain")
	if name != "utf-8" && name != "windows-1252" {
		l.log.Debug("Decoding timeline source", zap.String("charset", name))
		return transform.NewReader(br, enc.NewDecoder()), nil
	}
	return transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
}

// ReadCSV reads "seconds,tag[,highlight[,mask]]" rows. Highlight flag "1"
// adds legacy highlight marker to the tag. Mask is a space separated list
// of variant ids.
func (l *Loader) ReadCSV(r io.Reader) (Timeline, error) {
	src, err := l.decode(r)
	if err != nil {
		return Timeline{}, fmt.Errorf("unable to read csv timeline: %w", err)
	}

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var items []Entry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				l.skip(perr.Line, strings.Join(rec, ","), err)
				continue
			}
			return Timeline{}, fmt.Errorf("unable to read csv timeline: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 2 {
			l.skip(line, strings.Join(rec, ","), errors.New("at least two fields expected"))
			continue
		}
		sec, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			l.skip(line, strings.Join(rec, ","), err)
			continue
		}
		e := Entry{Seconds: sec, Tag: rec[1]}
		if len(rec) >= 3 && strings.TrimSpace(rec[2]) == "1" && !strings.HasSuffix(e.Tag, HighlightMarker) {
			e.Tag += HighlightMarker
		}
		if len(rec) >= 4 {
			e.Mask = strings.Fields(rec[3])
		}
		items = append(items, e)
	}
	return New(items), nil
}

var textLineRe = regexp.MustCompile(`^(.+?\d+:\d+) ?(.+)$`)

// ReadText reads "h:mm:ss tag" or "mm:ss tag" lines.
func (l *Loader) ReadText(r io.Reader) (Timeline, error) {
	src, err := l.decode(r)
	if err != nil {
		return Timeline{}, fmt.Errorf("unable to read text timeline: %w", err)
	}

	var items []Entry
	sc := bufio.NewScanner(src)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if len(text) == 0 {
			continue
		}
		m := textLineRe.FindStringSubmatch(text)
		if m == nil {
			l.skip(n, text, errors.New("no timestamp found"))
			continue
		}
		sec, err := ParseClock(m[1])
		if err != nil {
			l.skip(n, text, err)
			continue
		}
		items = append(items, Entry{Seconds: sec, Tag: strings.ReplaceAll(strings.TrimSpace(m[2]), ",", "，")})
	}
	if err := sc.Err(); err != nil {
		return Timeline{}, fmt.Errorf("unable to read text timeline: %w", err)
	}
	return New(items), nil
}

// ParseClock converts "h:mm:ss" or "mm:ss" to seconds.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	sec, mul := 0, 1
	for i := len(parts) - 1; i >= 0; i-- {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return 0, fmt.Errorf("bad time %q: %w", s, err)
		}
		sec += v * mul
		mul *= 60
	}
	return sec, nil
}

// ReadPBF reads bookmark files: "[Bookmark]" header followed by
// "index=milliseconds*tag*" rows.
func (l *Loader) ReadPBF(r io.Reader) (Timeline, error) {
	src, err := l.decode(r)
	if err != nil {
		return Timeline{}, fmt.Errorf("unable to read bookmark timeline: %w", err)
	}

	var items []Entry
	sc := bufio.NewScanner(src)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if len(text) == 0 || strings.HasPrefix(text, "[") {
			continue
		}
		_, value, ok := strings.Cut(text, "=")
		if !ok {
			l.skip(n, text, errors.New("no '=' found"))
			continue
		}
		ms, tag, ok := strings.Cut(value, "*")
		if !ok {
			l.skip(n, text, errors.New("no '*' found"))
			continue
		}
		v, err := strconv.Atoi(ms)
		if err != nil {
			l.skip(n, text, err)
			continue
		}
		items = append(items, Entry{Seconds: v / 1000, Tag: strings.TrimSuffix(tag, "*")})
	}
	if err := sc.Err(); err != nil {
		return Timeline{}, fmt.Errorf("unable to read bookmark timeline: %w", err)
	}
	return New(items), nil
}

// ReadRecorderXML imports super chat messages from live recorder XML files
// as timeline entries.
func (l *Loader) ReadRecorderXML(r io.Reader) (Timeline, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if _, err := doc.ReadFrom(r); err != nil {
		return Timeline{}, fmt.Errorf("unable to read recorder xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return Timeline{}, errors.New("unable to read recorder xml: no root element")
	}

	var items []Entry
	for i, el := range root.SelectElements("sc") {
		ts, err := strconv.ParseFloat(el.SelectAttrValue("ts", ""), 64)
		if err != nil {
			l.skip(i+1, el.Text(), err)
			continue
		}
		text := strings.TrimSpace(el.Text())
		if len(text) == 0 {
			text = "(空白SC)"
		}
		items = append(items, Entry{
			Seconds: int(math.Floor(ts)),
			Tag:     strings.ReplaceAll(el.SelectAttrValue("user", "")+"："+text, ",", "，"),
		})
	}
	return New(items), nil
}

// WriteCSV writes timeline as UTF-8 (with BOM) csv, so spreadsheets detect
// encoding properly.
func WriteCSV(w io.Writer, t Timeline) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	for _, e := range t.items {
		highlight := "0"
		if strings.HasSuffix(e.Tag, HighlightMarker) {
			highlight = "1"
		}
		rec := []string{strconv.Itoa(e.Seconds), e.Tag, highlight}
		if len(e.Mask) > 0 {
			rec = append(rec, strings.Join(e.Mask, " "))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}

// WritePBF writes timeline as bookmark file.
func WritePBF(w io.Writer, t Timeline) error {
	buf := new(bytes.Buffer)
	buf.WriteString("[Bookmark]\n")
	for i, e := range t.items {
		fmt.Fprintf(buf, "%d=%d*%s*\n", i, e.Seconds*1000, e.Tag)
	}
	_, err := buf.WriteTo(w)
	return err
}

// WriteText writes timeline as "h:mm:ss tag" lines.
func WriteText(w io.Writer, t Timeline) error {
	if t.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(w, t.String()+"\n")
	return err
}

// Save writes timeline to file in requested format.
func Save(path string, format common.TimelineFmt, t Timeline) (err error) {
	var write func(io.Writer, Timeline) error
	switch format {
	case common.TimelineFmtCsv:
		write = WriteCSV
	case common.TimelineFmtPbf:
		write = WritePBF
	case common.TimelineFmtTxt:
		write = WriteText
	default:
		return fmt.Errorf("unable to save timeline as %s: %w", format, ErrUnknownFormat)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create timeline file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f, t)
}
