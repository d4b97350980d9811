package markup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Colors used by legacy shorthand.
const (
	HighlightColor = "#ee230d"
	SongColor      = "#0b84ed"
	DanceColor     = "#017001"
)

var videoIDRe = regexp.MustCompile(`^BV[0-9A-Za-z]{10}(?:[^0-9A-Za-z]|$)`)

// VideoIDLen is length of platform video id: "BV" followed by ten
// alphanumerics.
const VideoIDLen = 12

// Tokenize lexes single annotated string. It never fails, unrecognized
// control items are ignored and unterminated control block swallows the
// remainder of the string.
func Tokenize(s string) []Token {
	var tokens []Token

	switch {
	case strings.HasSuffix(s, "**"):
		tokens = append(tokens, Token{Kind: SetColor, Payload: HighlightColor}, Token{Kind: SetBold})
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "*"):
		tokens = append(tokens, Token{Kind: SetColor, Payload: HighlightColor})
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "🎤"):
		tokens = append(tokens, Token{Kind: SetColor, Payload: SongColor})
	case strings.HasPrefix(s, "💃"):
		tokens = append(tokens, Token{Kind: SetColor, Payload: DanceColor})
	}

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Kind: Text, Payload: text.String()})
			text.Reset()
		}
	}

	for len(s) > 0 {
		switch {
		case s[0] == '[':
			flush()
			end := strings.IndexByte(s, ']')
			if end < 0 {
				s = ""
				continue
			}
			tokens = append(tokens, controlBlock(s[1:end])...)
			s = s[end+1:]
			continue
		case strings.HasPrefix(s, "http"):
			flush()
			addr, rest, _ := strings.Cut(s, " ")
			tokens = append(tokens, Token{Kind: URL, Payload: addr})
			s = rest
			continue
		case strings.HasPrefix(s, "BV") && videoIDRe.MatchString(s):
			flush()
			tokens = append(tokens, Token{Kind: VideoIDLink, Payload: s[:VideoIDLen]})
			s = s[VideoIDLen:]
			continue
		}
		next := nextMarker(s)
		text.WriteString(s[:next])
		s = s[next:]
	}
	flush()
	return tokens
}

// nextMarker finds position of the nearest possible marker past the first
// byte.
func nextMarker(s string) int {
	next := len(s)
	for _, m := range []string{"[", "http", "BV"} {
		if i := strings.Index(s[1:], m); i >= 0 && i+1 < next {
			next = i + 1
		}
	}
	return next
}

func controlBlock(block string) []Token {
	var tokens []Token
	for item := range strings.SplitSeq(block, "|") {
		if t, ok := controlItem(strings.TrimSpace(item)); ok {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func controlItem(item string) (Token, bool) {
	switch item {
	case "":
		return Token{}, false
	case "N":
		return Token{Kind: NewLine}, true
	case "R":
		return Token{Kind: Reset}, true
	case "B":
		return Token{Kind: SetBold}, true
	case "I":
		return Token{Kind: SetItalic}, true
	case "U":
		return Token{Kind: SetUnderline}, true
	case "S":
		return Token{Kind: SetStrike}, true
	case "AL":
		return Token{Kind: AlignLeft}, true
	case "AC":
		return Token{Kind: AlignCenter}, true
	case "AR":
		return Token{Kind: AlignRight}, true
	}

	head, rest := item[0], item[1:]
	switch {
	case head == '#':
		if c, ok := ParseColor(item); ok {
			return Token{Kind: SetColor, Payload: c}, true
		}
	case head == 'b' && strings.HasPrefix(rest, "#"):
		if c, ok := ParseColor(rest); ok {
			return Token{Kind: SetBackground, Payload: c}, true
		}
	case head == 's':
		if n, err := strconv.Atoi(rest); err == nil && n > 0 {
			return Token{Kind: SetFontSize, Payload: rest}, true
		}
	case head == 'l' && len(rest) > 0:
		return Token{Kind: URLDisplayName, Payload: rest}, true
	case head == 'i' && len(rest) > 0:
		return Token{Kind: ImageByID, Payload: rest}, true
	case head == 'u' && len(rest) > 0:
		return Token{Kind: ImageUpload, Payload: rest}, true
	}
	return Token{}, false
}

// ParseColor accepts single css hash token with 3, 4, 6 or 8 hex digits.
func ParseColor(s string) (string, bool) {
	lex := css.NewLexer(parse.NewInputString(s))
	tt, data := lex.Next()
	if tt != css.HashToken {
		return "", false
	}
	color := string(data)
	if tt, _ = lex.Next(); tt != css.ErrorToken {
		return "", false
	}
	switch len(color) - 1 {
	case 3, 4, 6, 8:
	default:
		return "", false
	}
	for _, c := range color[1:] {
		if !isHex(c) {
			return "", false
		}
	}
	return color, true
}

func isHex(c rune) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
