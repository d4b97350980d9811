package publish

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"

	"tlnote/config"
)

// Values holds variables available for template expansion.
type Values struct {
	Context string
	Title   string
	BVID    string
	Slug    string
	PassID  string
	Date    string
	// Parts is number of parts placed on the timeline.
	Parts int
	// Entries is number of entries in master timeline.
	Entries int
}

func expandTemplate(name config.TemplateFieldName, field string, values Values) (string, error) {
	tmpl, err := template.New(string(name)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values.Context = string(name)

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", fmt.Errorf("unable to expand template field %s: %w", name, err)
	}
	return buf.String(), nil
}

// full stops sentence model does not know about
const cjkStops = "。！？；"

type splitter struct {
	*sentences.DefaultSentenceTokenizer
}

func newSplitter(log *zap.Logger) *splitter {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		log.Warn("Unable to load sentences tokenizer data, summary will be cut at any character", zap.Error(err))
		return nil
	}
	return &splitter{tok}
}

// split breaks text into sentences, sentence keeps its trailing spaces.
func (s *splitter) split(in string) []string {
	var chunks []string
	if s == nil {
		chunks = append(chunks, in)
	} else {
		for _, sentence := range s.Tokenize(in) {
			chunks = append(chunks, sentence.Text)
		}
	}

	var out []string
	for _, c := range chunks {
		start := 0
		for i, r := range c {
			if strings.ContainsRune(cjkStops, r) {
				end := i + utf8.RuneLen(r)
				out = append(out, c[start:end])
				start = end
			}
		}
		if start < len(c) {
			out = append(out, c[start:])
		}
	}

	// tokenizer attaches spaces to the following sentence
	for i := range len(out) - 1 {
		if idx := strings.IndexFunc(out[i+1], func(r rune) bool { return !unicode.IsSpace(r) }); idx > 0 {
			out[i] += out[i+1][:idx]
			out[i+1] = out[i+1][idx:]
		}
	}
	return out
}

// trimSummary shortens text to at most limit characters preferring sentence
// boundaries. Zero limit keeps text as is.
func trimSummary(text string, limit int, s *splitter) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	var (
		sb    strings.Builder
		count int
	)
	for _, sentence := range s.split(text) {
		n := utf8.RuneCountInString(sentence)
		if count+n > limit {
			break
		}
		sb.WriteString(sentence)
		count += n
	}
	if out := strings.TrimSpace(sb.String()); len(out) > 0 {
		return out
	}
	return strings.TrimSpace(string([]rune(text)[:limit]))
}
