// Package markup lexes the inline annotation language used in timeline tags
// and template lines into a flat stream of tokens.
//
// Plain text is copied as is. Square brackets delimit control blocks, their
// "|" separated items change styling, break lines or embed images:
//
//	N        new line                  R        reset styling
//	B I U S  bold, italic, underline, strike
//	AL AC AR align line left, center, right
//	l<name>  display name of the next link
//	#rrggbb  text color                b#rrggbb background color
//	s<N>     font size in pixels
//	i<id>    image by platform id      u<path>  upload local image
//
// Bare "http..." runs become links and "BV" followed by ten alphanumerics
// becomes a video reference.
package markup

import "fmt"

// Kind of a token.
type Kind int

const (
	Text Kind = iota
	NewLine
	URL
	URLDisplayName
	VideoIDLink
	ImageByID
	ImageUpload
	SetColor
	SetBackground
	SetBold
	SetItalic
	SetUnderline
	SetStrike
	AlignLeft
	AlignCenter
	AlignRight
	SetFontSize
	Reset
)

var kindNames = [...]string{
	Text:           "Text",
	NewLine:        "NewLine",
	URL:            "Url",
	URLDisplayName: "UrlDisplayName",
	VideoIDLink:    "VideoIdLink",
	ImageByID:      "ImageById",
	ImageUpload:    "ImageUpload",
	SetColor:       "SetColor",
	SetBackground:  "SetBackground",
	SetBold:        "SetBold",
	SetItalic:      "SetItalic",
	SetUnderline:   "SetUnderline",
	SetStrike:      "SetStrike",
	AlignLeft:      "AlignLeft",
	AlignCenter:    "AlignCenter",
	AlignRight:     "AlignRight",
	SetFontSize:    "SetFontSize",
	Reset:          "Reset",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Token is a single lexical unit. Payload meaning depends on kind: text for
// Text, address for URL, name for URLDisplayName, video id for VideoIDLink,
// image id or local path for images, color for SetColor and SetBackground,
// pixel count for SetFontSize. Other kinds carry no payload.
type Token struct {
	Kind    Kind
	Payload string
}

func (t Token) String() string {
	if len(t.Payload) == 0 {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Payload)
}
